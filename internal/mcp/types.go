package mcp

import "time"

// CreateWindowInput is the input for the create_window tool.
type CreateWindowInput struct {
	URL    string `json:"url,omitempty" jsonschema:"URL to load after creation (file://, http(s)://, data: or about:blank)"`
	Title  string `json:"title,omitempty" jsonschema:"Window title"`
	Width  int    `json:"width,omitempty" jsonschema:"Width in pixels (default: coordinator defaults)"`
	Height int    `json:"height,omitempty" jsonschema:"Height in pixels (default: coordinator defaults)"`
	Modal  bool   `json:"modal,omitempty" jsonschema:"Make the window modal to the coordinator's host window"`
	Show   *bool  `json:"show,omitempty" jsonschema:"Show the window right away (default: true)"`
	Parent uint64 `json:"parent,omitempty" jsonschema:"Identity of an existing window to parent the new one to"`
}

// CreateWindowOutput is the output for the create_window tool.
type CreateWindowOutput struct {
	ID       uint64   `json:"id"`
	Channels []string `json:"channels"`
	URL      string   `json:"url,omitempty"`
}

// WindowInput addresses one window.
type WindowInput struct {
	ID uint64 `json:"id" jsonschema:"Window identity returned by create_window"`
}

// ShowWindowInput is the input for the show_window tool.
type ShowWindowInput struct {
	ID      uint64 `json:"id" jsonschema:"Window identity"`
	Focused *bool  `json:"focused,omitempty" jsonschema:"Request focus when showing (default: true)"`
}

// LoadURLInput is the input for the load_url tool.
type LoadURLInput struct {
	ID  uint64 `json:"id" jsonschema:"Window identity"`
	URL string `json:"url" jsonschema:"URL to load"`
}

// SendToWindowInput is the input for the send_to_window tool.
type SendToWindowInput struct {
	ID      uint64 `json:"id" jsonschema:"Window identity"`
	Channel string `json:"channel" jsonschema:"Application channel name delivered to the window content"`
	Args    []any  `json:"args,omitempty" jsonschema:"Arguments delivered after the window identity"`
}

// PostMessageInput is the input for the post_message tool.
type PostMessageInput struct {
	ID   uint64 `json:"id" jsonschema:"Window identity"`
	Args []any  `json:"args,omitempty" jsonschema:"Message arguments, relayed verbatim to the host window"`
}

// ReadMessagesInput is the input for the read_messages tool.
type ReadMessagesInput struct {
	ID  uint64 `json:"id" jsonschema:"Window identity"`
	Max int    `json:"max,omitempty" jsonschema:"Maximum number of messages to return (default: all buffered)"`
}

// MessageRecord is one buffered message.
type MessageRecord struct {
	Seq         uint64    `json:"seq"`
	Args        []any     `json:"args"`
	Error       string    `json:"error,omitempty"`
	ReceivedUTC time.Time `json:"received_utc"`
}

// ReadMessagesOutput is the output for the read_messages tool.
type ReadMessagesOutput struct {
	ID       uint64          `json:"id"`
	Messages []MessageRecord `json:"messages"`
	Dropped  int             `json:"dropped"`
	Pending  int             `json:"pending"`
	Closed   bool            `json:"closed"`
}

// WindowInfo describes one tracked window.
type WindowInfo struct {
	ID       uint64 `json:"id"`
	Title    string `json:"title,omitempty"`
	URL      string `json:"url,omitempty"`
	Closed   bool   `json:"closed"`
	Pending  int    `json:"pending"`
	Attached bool   `json:"attached"`
}

// ListWindowsOutput is the output for the list_windows tool.
type ListWindowsOutput struct {
	Windows []WindowInfo `json:"windows"`
}

// StatusOutput is returned by tools that only report success.
type StatusOutput struct {
	ID     uint64 `json:"id"`
	Status string `json:"status"`
}
