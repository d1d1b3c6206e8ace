package backend

// Candidate is the PII-reduced record the recruiting API returns to the
// agent. FullName is server-derived and may be empty on older deployments.
type Candidate struct {
	ID        int    `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	FullName  string `json:"full_name,omitempty"`
	Email     string `json:"email"`
	Phone     string `json:"phone,omitempty"`
	Country   string `json:"country,omitempty"`
	Status    string `json:"status,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

func (c *Candidate) DisplayName() string {
	if c.FullName != "" {
		return c.FullName
	}
	if c.LastName == "" {
		return c.FirstName
	}
	return c.FirstName + " " + c.LastName
}

type Interview struct {
	ID            int        `json:"id"`
	CandidateID   int        `json:"candidate_id"`
	InterviewDate string     `json:"interview_date"`
	InterviewTime string     `json:"interview_time"`
	Status        string     `json:"status"`
	MeetLink      string     `json:"meet_link,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	Candidate     *Candidate `json:"candidate,omitempty"`
}

type InterviewRequest struct {
	CandidateID   int    `json:"candidate_id"`
	InterviewDate string `json:"interview_date"`
	InterviewTime string `json:"interview_time,omitempty"`
	Status        string `json:"status,omitempty"`
	MeetLink      string `json:"meet_link,omitempty"`
	Notes         string `json:"notes,omitempty"`
}

// Draft.Recipients is a JSON-encoded array of {Email, Name} objects; the API
// stores it opaquely and echoes it back as a string.
type Draft struct {
	ID          int    `json:"id"`
	SenderEmail string `json:"sender_email,omitempty"`
	Subject     string `json:"subject"`
	HTMLContent string `json:"html_content"`
	Recipients  string `json:"recipients"`
	TemplateID  *int   `json:"template_id,omitempty"`
}

type Recipient struct {
	Email string `json:"Email"`
	Name  string `json:"Name,omitempty"`
}

type SendEmailsRequest struct {
	SenderEmail   string      `json:"senderEmail"`
	Subject       string      `json:"subject"`
	Recipients    []Recipient `json:"recipients"`
	TemplateID    *int        `json:"templateId,omitempty"`
	HTMLTemplate  string      `json:"htmlTemplate,omitempty"`
	PlainTemplate string      `json:"plainTemplate,omitempty"`
}

type SendEmailsResponse struct {
	Success bool   `json:"success"`
	TaskID  string `json:"task_id"`
}

// Campaign task states reported by the status endpoint.
const (
	TaskStatePending = "PENDING"
	TaskStateSuccess = "SUCCESS"
	TaskStateFailure = "FAILURE"
)

type TaskStatus struct {
	State   string `json:"state"`
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Results []any  `json:"results,omitempty"`
	Error   string `json:"error,omitempty"`
}

type Settings struct {
	AgentModels         []string          `json:"agent_models,omitempty"`
	AgentDefaultModel   string            `json:"agent_default_model,omitempty"`
	StatusEmailMappings map[string]string `json:"status_email_mappings,omitempty"`
}
