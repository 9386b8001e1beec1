package model

// Project is a billable bucket for tasks.
type Project struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Client string `json:"client"`

	// HourlyRate in whatever currency the user bills in; nil means
	// the project is not billable.
	HourlyRate *float64 `json:"hourlyRate,omitempty"`

	Color string `json:"color,omitempty"`
}

// Category is a classification tag for tasks.
type Category struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color,omitempty"`
	Description string `json:"description,omitempty"`
}
