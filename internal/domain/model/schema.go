package model

// Availability is the payload of the availability endpoint.
type Availability struct {
	Status          string `json:"status"`
	AgentIdentifier string `json:"agentIdentifier"`
	Message         string `json:"message"`
}

// InputField describes one accepted input_data field.
type InputField struct {
	ID   string         `json:"id"`
	Type string         `json:"type"`
	Name string         `json:"name"`
	Data InputFieldData `json:"data"`
}

// InputFieldData carries display hints for an input field.
type InputFieldData struct {
	Description string `json:"description"`
	Placeholder string `json:"placeholder,omitempty"`
}

// InputSchema lists the fields accepted in input_data.
type InputSchema struct {
	InputData []InputField `json:"input_data"`
}

// DefaultInputSchema returns the schema for startup idea evaluation.
func DefaultInputSchema() InputSchema {
	return InputSchema{
		InputData: []InputField{
			{
				ID:   StartupIdeaKey,
				Type: "string",
				Name: "Startup Idea",
				Data: InputFieldData{
					Description: "Startup idea to evaluate",
					Placeholder: "An AI fitness coach that adapts workouts to sleep data",
				},
			},
		},
	}
}
