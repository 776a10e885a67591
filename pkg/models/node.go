package models

// TriggerSuffix marks node types that start an execution.
const TriggerSuffix = ".trigger"

// Built-in node types.
const (
	NodeTypeManualTrigger  = "manual.trigger"
	NodeTypeCronTrigger    = "cron.trigger"
	NodeTypeWebhookTrigger = "webhook.trigger"
	NodeTypeCondition      = "condition"
	NodeTypeSwitch         = "switch"
	NodeTypeHTTPRequest    = "http.request"
	NodeTypeWait           = "wait"
	NodeTypeCode           = "code"
	NodeTypeSet            = "set"
	NodeTypeEditFields     = "edit.fields"
	NodeTypeItemLists      = "item.lists"
	NodeTypeMerge          = "merge"
	NodeTypeOutput         = "output"
	NodeTypeLog            = "log"
	NodeTypeTransform      = "transform"
)

// NodeIO is the recorded input and output of a finished node, exposed to templates
// as nodes.<id>.input and nodes.<id>.output.
type NodeIO struct {
	Input  map[string]any `json:"input"`
	Output map[string]any `json:"output"`
}
