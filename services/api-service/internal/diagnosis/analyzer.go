package diagnosis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/agribeta/agribeta/services/api-service/internal/metrics"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var (
	ErrAnalyzerUnavailable = errors.New("diagnosis model is not configured")
	ErrModelFailed         = errors.New("diagnosis model request failed")
)

// Image is an uploaded crop photo.
type Image struct {
	Data        []byte
	ContentType string
	Filename    string
	CropType    string
}

type Prediction struct {
	Label        string  `json:"label"`
	Confidence   float64 `json:"confidence"`
	CropType     string  `json:"crop_type"`
	ModelVersion string  `json:"model_version"`
}

type Analyzer interface {
	Analyze(ctx context.Context, img Image) (Prediction, error)
}

// HTTPAnalyzer posts the image as multipart form data to a model endpoint
// that answers with a Prediction document.
type HTTPAnalyzer struct {
	url    string
	token  string
	client *http.Client
}

func NewHTTPAnalyzer(url, token string, timeout time.Duration) *HTTPAnalyzer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAnalyzer{
		url:   strings.TrimSpace(url),
		token: strings.TrimSpace(token),
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
}

func (a *HTTPAnalyzer) Analyze(ctx context.Context, img Image) (Prediction, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("image", img.Filename)
	if err != nil {
		return Prediction{}, err
	}
	if _, err := fw.Write(img.Data); err != nil {
		return Prediction{}, err
	}
	if img.CropType != "" {
		if err := mw.WriteField("crop_type", img.CropType); err != nil {
			return Prediction{}, err
		}
	}
	if err := mw.Close(); err != nil {
		return Prediction{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, &body)
	if err != nil {
		return Prediction{}, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}

	started := time.Now()
	resp, err := a.client.Do(req)
	metrics.DiagnosisModelSeconds.Observe(time.Since(started).Seconds())
	if err != nil {
		return Prediction{}, fmt.Errorf("%w: %v", ErrModelFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Prediction{}, fmt.Errorf("%w: status %d: %s", ErrModelFailed, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var pred Prediction
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&pred); err != nil {
		return Prediction{}, fmt.Errorf("%w: decode response: %v", ErrModelFailed, err)
	}
	if strings.TrimSpace(pred.Label) == "" {
		return Prediction{}, fmt.Errorf("%w: empty label", ErrModelFailed)
	}
	if pred.Confidence < 0 || pred.Confidence > 1 {
		return Prediction{}, fmt.Errorf("%w: confidence %v out of range", ErrModelFailed, pred.Confidence)
	}
	return pred, nil
}
