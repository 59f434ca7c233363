package api

// PipelineConfig mirrors the server's pipeline configuration object.
type PipelineConfig struct {
	SampleName  string  `json:"sample_name"`
	Protocol    string  `json:"protocol"`
	MaxMismatch int     `json:"max_mismatch"`
	MinGenes    int     `json:"min_genes"`
	MaxGenes    int     `json:"max_genes"`
	MaxMito     float64 `json:"max_mito"`
	NPCs        int     `json:"n_pcs"`
	Resolution  float64 `json:"resolution"`
}

// DefaultPipelineConfig returns the server-side defaults.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		SampleName:  "sample",
		Protocol:    "10x-3prime-v3",
		MaxMismatch: 1,
		MinGenes:    200,
		MaxGenes:    10000,
		MaxMito:     20.0,
		NPCs:        50,
		Resolution:  1.0,
	}
}

// UploadResponse is the server's answer to a file upload.
type UploadResponse struct {
	JobID string            `json:"job_id"`
	Files map[string]string `json:"files"`
}

// StartResponse is the server's answer to a pipeline start request.
type StartResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

// StatusSnapshot is one response from the status endpoint.
type StatusSnapshot struct {
	JobID    string                 `json:"job_id"`
	Status   string                 `json:"status"`
	Progress float64                `json:"progress"`
	Message  string                 `json:"message"`
	Result   map[string]interface{} `json:"result,omitempty"`
}

// ResultsResponse carries the completed pipeline's result payload and
// output file locations.
type ResultsResponse struct {
	JobID  string                 `json:"job_id"`
	Result map[string]interface{} `json:"result"`
	Files  map[string]string      `json:"files"`
}

// Protocol describes one supported sequencing protocol.
type Protocol struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	BarcodeLen int    `json:"barcode_len"`
	UMILen     int    `json:"umi_len"`
}

// Whitelist describes one available barcode whitelist.
type Whitelist struct {
	Name     string `json:"name"`
	File     string `json:"file"`
	Barcodes int    `json:"barcodes"`
}

// HealthInfo is the server's health check response.
type HealthInfo struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

type protocolsResponse struct {
	Protocols []Protocol `json:"protocols"`
}

type whitelistsResponse struct {
	Whitelists []Whitelist `json:"whitelists"`
}

// apiError is the server's error body shape.
type apiError struct {
	Detail string `json:"detail"`
}
