package portal

// SourceType is a bitmask of screen cast source kinds
type SourceType uint32

// Source types for SelectSources
const (
	SourceTypeMonitor SourceType = 1 << 0
	SourceTypeWindow  SourceType = 1 << 1
	SourceTypeVirtual SourceType = 1 << 2
)

// CursorMode is a bitmask of cursor rendering modes
type CursorMode uint32

// Cursor modes for SelectSources
const (
	CursorModeHidden   CursorMode = 1 << 0
	CursorModeEmbedded CursorMode = 1 << 1
	CursorModeMetadata CursorMode = 1 << 2
)

// PersistMode controls whether a source selection may be restored later
type PersistMode uint32

// Persist modes for SelectSources
const (
	PersistModeNone        PersistMode = 0
	PersistModeApplication PersistMode = 1
	PersistModeSession     PersistMode = 2
)

// CreateSessionRequest carries the arguments of ScreenCast.CreateSession
type CreateSessionRequest struct {
	Handle        string
	SessionHandle string
	AppID         string
}

// SelectSourcesOptions are the caller's source preferences
type SelectSourcesOptions struct {
	Types        SourceType
	Multiple     bool
	CursorMode   CursorMode
	PersistMode  PersistMode
	RestoreToken string
}

// StartCastOptions carries the arguments of ScreenCast.Start
type StartCastOptions struct {
	Handle       string
	ParentWindow string
}

// Stream is one PipeWire stream handed to the caller
type Stream struct {
	NodeID     uint32     `json:"node_id"`
	SourceType SourceType `json:"source_type"`
}

// ScreenshotRequest carries the arguments of Screenshot.Screenshot
type ScreenshotRequest struct {
	Handle       string
	AppID        string
	ParentWindow string
	Modal        bool
	Interactive  bool
}

// Color is an sRGB color with components in [0, 1]
type Color struct {
	Red   float64
	Green float64
	Blue  float64
}

// AccessRequest carries the arguments of Access.AccessDialog
type AccessRequest struct {
	Handle       string
	AppID        string
	ParentWindow string
	Title        string
	Subtitle     string
	Body         string
}
