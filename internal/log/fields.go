package log

// Common field names for structured logging
const (
	FieldComponent = "component"
	FieldEngine    = "engine"
	FieldDocID     = "doc_id"
	FieldDocCount  = "doc_count"
	FieldURL       = "url"
	FieldReason    = "reason"
	FieldStatus    = "status"
	FieldHint      = "hint"
	FieldSession   = "session"
	FieldError     = "error"
	FieldYear      = "year"
	FieldMonth     = "month"
	FieldCategory  = "category"
)

// Components defines standard component names
const (
	ComponentApp      = "app"
	ComponentDB       = "db"
	ComponentModel    = "model"
	ComponentSync     = "sync"
	ComponentSettings = "settings"
	ComponentImport   = "import"
	ComponentExport   = "export"
)
