// Package deepgram synthesizes speech through the Deepgram speak REST API,
// returning raw PCM for each text segment.
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"

	"github.com/jennalabs/voicecart/core/audio"
	"github.com/jennalabs/voicecart/core/texttospeech"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const scopeName = "github.com/jennalabs/voicecart/core/texttospeech/deepgram"

var (
	tracer = otel.Tracer(scopeName)
	logger = otelslog.NewLogger(scopeName)
)

const (
	speakURL     = "https://api.deepgram.com/v1/speak"
	defaultVoice = "aura-asteria-en"
)

type SynthesisClient struct {
	apiKey  string
	options texttospeech.SynthesisOptions

	httpClient *http.Client
}

func NewSynthesisClient(opts ...texttospeech.SynthesisOption) (*SynthesisClient, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	options := texttospeech.SynthesisOptions{
		Voice:        defaultVoice,
		EncodingInfo: audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.EncodingInfo.Format != audio.EncodingLinear16 {
		return nil, fmt.Errorf("unsupported encoding: %s", options.EncodingInfo.Format.Name())
	}

	return &SynthesisClient{
		apiKey:  apiKey,
		options: options,
		httpClient: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
				return operationName + " " + request.URL.Path
			}),
		)},
	}, nil
}

func (c *SynthesisClient) EncodingInfo() audio.EncodingInfo {
	return c.options.EncodingInfo
}

// Synthesize renders one segment and returns its raw samples with no
// container.
func (c *SynthesisClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()
	span.SetAttributes(attribute.String("request.voice", c.options.Voice))
	span.SetAttributes(attribute.Int("request.text_length", len(text)))

	speakUrl, _ := url.Parse(speakURL)
	queryParams := speakUrl.Query()
	queryParams.Set("model", c.options.Voice)
	queryParams.Set("encoding", c.options.EncodingInfo.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(c.options.EncodingInfo.SampleRate))
	queryParams.Set("container", "none")
	speakUrl.RawQuery = queryParams.Encode()

	reqBody, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		err = fmt.Errorf("error marshalling JSON: %w", err)
		span.RecordError(err)
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", speakUrl.String(), bytes.NewBuffer(reqBody))
	if err != nil {
		err = fmt.Errorf("error creating HTTP request: %w", err)
		span.RecordError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		if errorBody, err := io.ReadAll(resp.Body); err == nil {
			span.SetAttributes(attribute.String("response.error", string(errorBody)))
			logger.WarnContext(ctx, "synthesis request rejected", "status", resp.Status, "body", string(errorBody))
		}

		err := fmt.Errorf("non-OK HTTP status: %s", resp.Status)
		span.RecordError(err)
		return nil, err
	}

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("error reading audio body: %w", err)
		span.RecordError(err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("response.audio_bytes", len(pcm)))
	return pcm, nil
}
