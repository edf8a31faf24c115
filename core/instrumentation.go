package orchestration

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/jennalabs/voicecart/core"

var tracer = otel.Tracer(scopeName)
