package backend

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/securekyc/kestrel/internal/domain"
)

// FraudClient talks to the fraud analysis service.
type FraudClient struct {
	*client
}

func NewFraudClient(baseURL string, timeout time.Duration) *FraudClient {
	return &FraudClient{client: newClient(baseURL, timeout)}
}

// Aggregate fetches the pre-aggregated platform risk summary. On failure the
// caller recomputes the aggregate locally from the record list.
func (c *FraudClient) Aggregate(ctx context.Context) (domain.RiskAggregate, error) {
	var agg domain.RiskAggregate
	if err := c.getJSON(ctx, "/fraud-aggregate", &agg); err != nil {
		return domain.RiskAggregate{}, err
	}
	return agg, nil
}

// Analyze runs the synchronous fraud verification pipeline over an uploaded
// document plus form fields.
func (c *FraudClient) Analyze(ctx context.Context, fields map[string]string, filename string, content io.Reader) (domain.AnalyzeResult, error) {
	var files []filePart
	if content != nil {
		files = append(files, filePart{Field: "file", Filename: filename, Content: content})
	}
	body, contentType, err := multipartBody(fields, files)
	if err != nil {
		return domain.AnalyzeResult{}, err
	}
	resp, err := c.post(ctx, "/analyze", contentType, body)
	if err != nil {
		return domain.AnalyzeResult{}, err
	}
	var result domain.AnalyzeResult
	if err := json.Unmarshal(resp, &result); err != nil {
		return domain.AnalyzeResult{}, err
	}
	return result, nil
}
