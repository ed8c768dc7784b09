package model

// Stat is an exponentially weighted travel-time statistic in milliseconds.
type Stat struct {
	EMA1  float64 `json:"ema_x"`
	EMA2  float64 `json:"ema_x2"`
	Mean  float64 `json:"mean_ms"`
	Std   float64 `json:"std_ms"`
	Count int64   `json:"count"`
}

// Completion is a finished-task report fed back into the statistics.
type Completion struct {
	Code      string `json:"instruction_code"`
	From      string `json:"location_from"`
	To        string `json:"location_to"`
	Container string `json:"container_code,omitempty"`

	// FinishedAt is the completion time in Unix milliseconds; zero means now.
	FinishedAt int64 `json:"finished_at,omitempty"`
}

// ContainerLast remembers where and when a container last finished a task.
type ContainerLast struct {
	LastFinish int64  `json:"last_finish_ts"`
	LastTo     string `json:"last_to"`
}
