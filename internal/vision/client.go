package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

// Client calls a Roboflow-style workflow inference server over HTTP.
// One Client is bound to a single workspace/workflow pair; the bot uses two
// instances, one for troop detection and one for per-slot card detection.
type Client struct {
	baseURL   string
	apiKey    string
	workspace string
	workflow  string
	http      *http.Client
	log       *logrus.Entry
}

// NewClient builds a workflow inference client. baseURL is the server root
// (e.g. http://localhost:9001); workspace and workflow identify the deployed
// pipeline.
func NewClient(baseURL, apiKey, workspace, workflow string, log *logrus.Entry) *Client {
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		workspace: workspace,
		workflow:  workflow,
		http:      &http.Client{Timeout: 15 * time.Second},
		log:       log,
	}
}

type workflowRequest struct {
	APIKey string                 `json:"api_key"`
	Inputs map[string]interface{} `json:"inputs"`
}

type rawPrediction struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
}

// Infer submits the image and returns the parsed detections. A frame the
// backend cannot make sense of yields an empty slice; only transport and
// protocol failures surface as errors.
func (c *Client) Infer(ctx context.Context, image []byte) ([]Detection, error) {
	reqBody := workflowRequest{
		APIKey: c.apiKey,
		Inputs: map[string]interface{}{
			"image": map[string]string{
				"type":  "base64",
				"value": base64.StdEncoding.EncodeToString(image),
			},
		},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("vision: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/infer/workflows/%s/%s", c.baseURL, c.workspace, c.workflow)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("vision: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vision: infer: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision: infer: unexpected status %s", resp.Status)
	}

	var body json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("vision: decode response: %w", err)
	}

	dets := parsePredictions(body)
	if len(dets) == 0 {
		c.log.Debug("no predictions in inference response")
	}
	return dets, nil
}

// parsePredictions unwraps the prediction list from the workflow response.
// The server has shipped several shapes over time: a top-level object with a
// "predictions" key, a list whose first element carries it, and a doubly
// nested {"predictions": {"predictions": [...]}}. All of them are accepted;
// anything unrecognized parses as zero detections.
func parsePredictions(body json.RawMessage) []Detection {
	if raw := extractPredictionArray(body); raw != nil {
		return decodePredictionArray(raw)
	}
	return nil
}

func extractPredictionArray(body json.RawMessage) json.RawMessage {
	// Object shape.
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err == nil {
		if inner, ok := obj["predictions"]; ok {
			return unwrapNested(inner)
		}
		if outputs, ok := obj["outputs"]; ok {
			return extractPredictionArray(outputs)
		}
		return nil
	}

	// List shape: take the first element that yields predictions.
	var list []json.RawMessage
	if err := json.Unmarshal(body, &list); err == nil {
		for _, el := range list {
			if raw := extractPredictionArray(el); raw != nil {
				return raw
			}
		}
	}
	return nil
}

// unwrapNested resolves the {"predictions": [...]} vs {"predictions":
// {"predictions": [...]}} ambiguity.
func unwrapNested(raw json.RawMessage) json.RawMessage {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		return raw
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		if inner, ok := obj["predictions"]; ok {
			return unwrapNested(inner)
		}
	}
	return nil
}

func decodePredictionArray(raw json.RawMessage) []Detection {
	var preds []rawPrediction
	if err := json.Unmarshal(raw, &preds); err != nil {
		return nil
	}
	dets := make([]Detection, 0, len(preds))
	for _, p := range preds {
		if p.Class == "" {
			continue
		}
		dets = append(dets, Detection{
			Class:      p.Class,
			Confidence: p.Confidence,
			X:          p.X,
			Y:          p.Y,
			Width:      p.Width,
			Height:     p.Height,
		})
	}
	return dets
}
