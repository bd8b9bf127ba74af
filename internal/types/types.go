// Package types holds shared configuration and error types used across the
// PDF translation pipeline.
package types

// Config is the application configuration. All fields are validated at the
// boundary by the config package; components receive already-validated values.
type Config struct {
	OpenAIAPIKey  string `json:"openai_api_key"`
	OpenAIBaseURL string `json:"openai_base_url"` // OpenAI-compatible API base URL
	OpenAIModel   string `json:"openai_model"`

	// TargetLanguage is the default target language code (ISO 639-1).
	// Requests may override it per task.
	TargetLanguage string `json:"target_language"`

	// Confidence is the layout detection threshold. Valid range [0.1, 0.9].
	Confidence float64 `json:"confidence"`

	// RenderDPI is the rasterization resolution for page images.
	RenderDPI int `json:"render_dpi"`

	// MaxBatchChars bounds the request size of a single translation API call.
	MaxBatchChars int `json:"max_batch_chars"`

	// PageConcurrency bounds how many pages of one document are processed in
	// parallel. TranslateConcurrency bounds in-flight translation API calls
	// shared across all pages.
	PageConcurrency      int `json:"page_concurrency"`
	TranslateConcurrency int `json:"translate_concurrency"`

	// DataDirectory is the root of the file storage backend.
	DataDirectory string `json:"data_directory"`

	// OCREndpoint is the base URL of the OCR engine service.
	OCREndpoint string `json:"ocr_endpoint"`

	// LayoutModelPath points at the layout detection ONNX model.
	LayoutModelPath string `json:"layout_model_path"`

	// FontDirectory holds TrueType fonts installed into the PDF renderer at
	// startup. The renderer only draws core PDF fonts plus installed ones, so
	// CJK targets need this populated. Empty skips installation.
	FontDirectory string `json:"font_directory"`

	ListenAddr     string `json:"listen_addr"`
	MaxUploadBytes int64  `json:"max_upload_bytes"`
}
