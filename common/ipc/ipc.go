// Package ipc holds the messages marathon prints for other programs to consume,
// both in tool mode and on the console
package ipc

type (
	// A window as the task switcher would show it
	Window struct {
		ID    int    `json:"id"`
		Title string `json:"title"`
		AppID string `json:"app_id"`
		// 0 if the owning process is unknown
		PID int `json:"pid"`
		// "toplevel", "legacy" or "none" while the client is still setting the surface up
		Role string `json:"role"`
		// Only announced windows are shown to the user
		Announced bool `json:"announced"`
		// A close sequence is running for this window
		Closing bool `json:"closing"`
	}

	// Response to a `list json` console command
	WindowList struct {
		Windows []Window `json:"windows"`
		// Launched apps that have not shown a window yet
		PendingPIDs []int `json:"pending_pids"`
	}

	// A mode an output supports
	OutputMode struct {
		// Mode height in pixel
		Height int `json:"height"`
		// Mode width in pixel
		Width int `json:"width"`
		// Refresh rate of the mode in millihertz
		RefreshRate int  `json:"refresh_rate"`
		Preferred   bool `json:"preferred"`
	}

	// Response of the tool mode output actions
	OutputResponse struct {
		// List of all outputs. Only contains target output if specified
		Outputs []string `json:"outputs"`
		// A list of modes an output supports. Only set for the modes action
		OutputModes map[string][]OutputMode `json:"output_modes,omitempty"`
		// Nr of outputs found
		OutputsFound int `json:"outputs_found"`
	}

	// Response of the tool mode env action
	EnvResponse struct {
		Command  string   `json:"command"`
		Resolved string   `json:"resolved"`
		Kind     string   `json:"kind"`
		Env      []string `json:"env"`
	}
)
