package schemas

// IntentCategory is the closed set of intent categories. Categories are
// mutually exclusive by effect, not by vocabulary.
type IntentCategory string

const (
	CategoryAppLifecycle     IntentCategory = "app_lifecycle"     // Start or terminate an application process.
	CategoryWindowManagement IntentCategory = "window_management" // Change window geometry or state (focus, close, minimize).
	CategorySystemQuery      IntentCategory = "system_query"      // Read-only system state (volume level, battery, time).
	CategorySystemControl    IntentCategory = "system_control"    // Change system state (set volume, brightness).
	CategoryScreenCapture    IntentCategory = "screen_capture"    // Produce an image of the display.
	CategoryScreenPerception IntentCategory = "screen_perception" // Read or understand what is on screen.
	CategoryInputInjection   IntentCategory = "input_injection"   // Synthesize keyboard or mouse input.
	CategoryFileOperation    IntentCategory = "file_operation"
	CategoryBrowserControl   IntentCategory = "browser_control"
	CategoryOfficeDocument   IntentCategory = "office_document"
	CategoryClipboard        IntentCategory = "clipboard"
	CategoryMemoryRecall     IntentCategory = "memory_recall"
	CategoryInformation      IntentCategory = "information_query"
	CategoryUnknown          IntentCategory = "unknown"
)

// AllCategories lists every category in a stable order.
func AllCategories() []IntentCategory {
	return []IntentCategory{
		CategoryAppLifecycle,
		CategoryWindowManagement,
		CategorySystemQuery,
		CategorySystemControl,
		CategoryScreenCapture,
		CategoryScreenPerception,
		CategoryInputInjection,
		CategoryFileOperation,
		CategoryBrowserControl,
		CategoryOfficeDocument,
		CategoryClipboard,
		CategoryMemoryRecall,
		CategoryInformation,
		CategoryUnknown,
	}
}

// Valid reports whether c is a member of the closed category set.
func (c IntentCategory) Valid() bool {
	for _, known := range AllCategories() {
		if c == known {
			return true
		}
	}
	return false
}

// ClassificationResult is produced once per action by the intent classifier.
type ClassificationResult struct {
	Category   IntentCategory `json:"category"`
	Confidence float64        `json:"confidence"` // In [0,1].
	Reasoning  string         `json:"reasoning"`
}
