package gcp

import (
	"context"
	"fmt"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"
	"google.golang.org/api/option"
)

// DocumentAIConverter sends legacy office documents (.doc, .xls) through a
// Document AI processor and returns the document bytes it produces.
type DocumentAIConverter struct {
	client    *documentai.DocumentProcessorClient
	processor string
}

// NewDocumentAIConverter binds a client to
// projects/<projectID>/locations/<location>/processors/<processorID>.
func NewDocumentAIConverter(ctx context.Context, projectID, location, processorID string) (*DocumentAIConverter, error) {
	if projectID == "" || location == "" || processorID == "" {
		return nil, fmt.Errorf("NewDocumentAIConverter: projectID, location and processorID cannot be empty")
	}
	endpoint := fmt.Sprintf("%s-documentai.googleapis.com:443", location)
	client, err := documentai.NewDocumentProcessorClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("documentai.NewDocumentProcessorClient: %w", err)
	}
	return &DocumentAIConverter{
		client:    client,
		processor: fmt.Sprintf("projects/%s/locations/%s/processors/%s", projectID, location, processorID),
	}, nil
}

// Process runs the processor over data and returns the resulting content.
func (c *DocumentAIConverter) Process(ctx context.Context, data []byte, mimeType string) ([]byte, error) {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	resp, err := c.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: c.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: mimeType,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("document ai process %s: %w", c.processor, err)
	}
	content := resp.GetDocument().GetContent()
	if len(content) == 0 {
		return nil, fmt.Errorf("document ai returned no content for %s", c.processor)
	}
	return content, nil
}

func (c *DocumentAIConverter) Close() error {
	return c.client.Close()
}
