package canvas

import (
	"encoding/json"
	"fmt"
	"time"
)

type Account struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	ParentID *int64 `json:"parent_account_id"`
}

func (a Account) validate() error {
	if a.ID == 0 {
		return fmt.Errorf("account: missing id")
	}
	return nil
}

type Term struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	StartAt   *time.Time `json:"start_at"`
	EndAt     *time.Time `json:"end_at"`
	SISTermID string     `json:"sis_term_id"`
}

type Course struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	CourseCode       string     `json:"course_code"`
	SISCourseID      string     `json:"sis_course_id"`
	WorkflowState    string     `json:"workflow_state"`
	AccountID        int64      `json:"account_id"`
	EnrollmentTermID int64      `json:"enrollment_term_id"`
	StartAt          *time.Time `json:"start_at"`
	EndAt            *time.Time `json:"end_at"`
	TotalStudents    *int       `json:"total_students"`
	Term             *Term      `json:"term"`
}

func (c Course) validate() error {
	if c.ID == 0 {
		return fmt.Errorf("course: missing id")
	}
	return nil
}

// User is the subset of a Canvas user embedded in enrollments.
type User struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	SortableName string `json:"sortable_name"`
	SISUserID    string `json:"sis_user_id"`
	LoginID      string `json:"login_id"`
	Email        string `json:"email"`
}

type Profile struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	PrimaryEmail string `json:"primary_email"`
	LoginID      string `json:"login_id"`
}

const (
	TeacherEnrollment = "TeacherEnrollment"
	TaEnrollment      = "TaEnrollment"
)

type Enrollment struct {
	ID              int64  `json:"id"`
	CourseID        int64  `json:"course_id"`
	Type            string `json:"type"`
	Role            string `json:"role"`
	RoleID          int64  `json:"role_id"`
	EnrollmentState string `json:"enrollment_state"`
	UserID          int64  `json:"user_id"`
	User            User   `json:"user"`
}

func (e Enrollment) validate() error {
	if e.UserID == 0 && e.User.ID == 0 {
		return fmt.Errorf("enrollment %d: missing user", e.ID)
	}
	return nil
}

type Module struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Position   int    `json:"position"`
	ItemsCount int    `json:"items_count"`
	Published  bool   `json:"published"`
}

func (m Module) validate() error {
	if m.ID == 0 {
		return fmt.Errorf("module: missing id")
	}
	return nil
}

type ModuleItem struct {
	ID          int64  `json:"id"`
	ModuleID    int64  `json:"module_id"`
	Title       string `json:"title"`
	Type        string `json:"type"`
	ExternalURL string `json:"external_url"`
	NewTab      bool   `json:"new_tab"`
}

func (m ModuleItem) validate() error {
	if m.ID == 0 {
		return fmt.Errorf("module item: missing id")
	}
	return nil
}

// Navigation is the course_navigation placement of an external tool.
type Navigation struct {
	Enabled    bool   `json:"enabled"`
	Text       string `json:"text,omitempty"`
	Visibility string `json:"visibility,omitempty"`
	Default    string `json:"default,omitempty"`
}

type ExternalTool struct {
	ID               int64       `json:"id"`
	Name             string      `json:"name"`
	URL              string      `json:"url"`
	ConsumerKey      string      `json:"consumer_key"`
	PrivacyLevel     string      `json:"privacy_level"`
	CourseNavigation *Navigation `json:"course_navigation"`
}

func (t ExternalTool) validate() error {
	if t.ID == 0 {
		return fmt.Errorf("external tool: missing id")
	}
	return nil
}

// ExternalToolLink describes the navigation link pointing course members at a catalog.
type ExternalToolLink struct {
	Name         string
	URL          string
	ConsumerKey  string
	SharedSecret string
	// Visibility is "members", "admins" or "public"; empty means members.
	Visibility string
	// TermName disambiguates the link name when another catalog already owns Name.
	TermName string
}

type validatable interface {
	validate() error
}

func decodeOne[T validatable](b []byte) (T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return v, err
	}
	return v, v.validate()
}

func decodeMany[T validatable](b []byte) ([]T, error) {
	var vs []T
	if err := json.Unmarshal(b, &vs); err != nil {
		return nil, err
	}
	for _, v := range vs {
		if err := v.validate(); err != nil {
			return nil, err
		}
	}
	return vs, nil
}
