package domain

type Task struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	PlannedStart string         `json:"planned_start,omitempty" format:"date"`
	PlannedEnd   string         `json:"planned_end,omitempty" format:"date"`
	ActualEnd    *string        `json:"actual_end,omitempty" format:"date"`
	Status       TaskStatus     `json:"status" enum:"pending,in_progress,paused,completed"`
	BrigadeID    *string        `json:"brigade_id,omitempty"`
	Employees    []string       `json:"employees,omitempty"`
	Materials    []TaskMaterial `json:"materials,omitempty"`
	Phases       []Phase        `json:"phases,omitempty"`
	CreatedAt    string         `json:"created_at" format:"date-time"`
	UpdatedAt    string         `json:"updated_at" format:"date-time"`
}

type TaskMaterial struct {
	MaterialID string `json:"material_id"`
	Quantity   int    `json:"quantity"`
}

type Phase struct {
	ID           string      `json:"id"`
	TaskID       string      `json:"task_id"`
	Order        int         `json:"ordre"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	DurationDays int         `json:"duration_days"`
	PlannedStart *string     `json:"planned_start,omitempty" format:"date"`
	PlannedEnd   *string     `json:"planned_end,omitempty" format:"date"`
	ActualStart  *string     `json:"actual_start,omitempty" format:"date"`
	ActualEnd    *string     `json:"actual_end,omitempty" format:"date"`
	Status       PhaseStatus `json:"status" enum:"waiting,in_progress,done"`
}

// TaskProgress is the phase-derived completion of a task.
type TaskProgress struct {
	TaskID   string  `json:"task_id"`
	Done     int     `json:"done"`
	Total    int     `json:"total"`
	Fraction float64 `json:"fraction"`
}

// Progress counts done phases over all phases. A task without phases is at 0.
func Progress(taskID string, phases []Phase) TaskProgress {
	p := TaskProgress{TaskID: taskID, Total: len(phases)}
	for _, ph := range phases {
		if ph.Status == PhaseDone {
			p.Done++
		}
	}
	if p.Total > 0 {
		p.Fraction = float64(p.Done) / float64(p.Total)
	}
	return p
}

type Report struct {
	ID          string     `json:"id"`
	PhaseID     string     `json:"phase_id"`
	Description string     `json:"description"`
	ReportDate  string     `json:"report_date" format:"date"`
	Advancement int        `json:"advancement" minimum:"0" maximum:"100"`
	Photos      []Photo    `json:"photos,omitempty"`
	Validation  Validation `json:"validation" enum:"pending,needs_revision,approved"`
	Comment     *string    `json:"comment,omitempty"`
	CreatedAt   string     `json:"created_at" format:"date-time"`
	UpdatedAt   string     `json:"updated_at" format:"date-time"`
}

type Photo struct {
	ID       string `json:"id"`
	ReportID string `json:"report_id"`
	Filename string `json:"filename"`
	Order    int    `json:"order"`
}

// PhotoUpload is a photo as received from a client, before it is stored.
type PhotoUpload struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

type Material struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Unit      string `json:"unit,omitempty"`
	Stock     int    `json:"stock"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

// LineItem is one requested material, named as the brigade typed it.
type LineItem struct {
	Name     string `json:"nom"`
	Quantity int    `json:"quantite"`
}

type MaterialRequest struct {
	ID        string         `json:"id"`
	TaskID    string         `json:"task_id"`
	Status    string         `json:"status"`
	Lines     []MaterialLine `json:"lines"`
	CreatedAt string         `json:"created_at" format:"date-time"`
}

// MaterialLine is a request line resolved against the catalog.
type MaterialLine struct {
	RequestID  string `json:"request_id"`
	MaterialID string `json:"material_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
}

// Payload is the navigation data carried by a notification.
type Payload struct {
	RedirectTo string     `json:"redirectTo,omitempty"`
	Filter     string     `json:"filter,omitempty"`
	TaskID     string     `json:"taskId,omitempty"`
	RapportID  string     `json:"rapportId,omitempty"`
	DemandeID  string     `json:"demandeId,omitempty"`
	Materiels  []LineItem `json:"materiels,omitempty"`
}

type Notification struct {
	Seq       int64   `json:"seq"`
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Message   string  `json:"message"`
	Role      Role    `json:"role" enum:"chef_section,chef_brigade"`
	UserID    *string `json:"user_id,omitempty"`
	Payload   Payload `json:"payload"`
	Read      bool    `json:"read"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIKey authenticates a device or service as one role. Only the hash of the
// key is stored.
type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Role      Role   `json:"role"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"-"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
