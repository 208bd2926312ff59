package provisioning

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"mediasite-provisioning/internal/canvas"
)

const (
	ongoingTerm = "ongoing"

	instructorURN = "urn:lti:role:ims/lis/Instructor"
	taURN         = "urn:lti:role:ims/lis/TeachingAssistant"
	learnerURN    = "urn:lti:role:ims/lis/Learner"

	// AuthenticatedUsersRole is the host's built-in role for any signed-in user.
	AuthenticatedUsersRole = "AuthenticatedUsers"
)

// IsOngoing reports whether the term has no academic year.
func IsOngoing(termName string) bool {
	return strings.EqualFold(strings.TrimSpace(termName), ongoingTerm)
}

// ResolveYear derives the academic year label "YYYY-YYYY" for a course.
// It returns "" for ongoing terms and when nothing usable is available.
// The start year comes from the SIS term id, then the term name, then the
// start date (July or later starts a new academic year).
func ResolveYear(term *canvas.Term, start *time.Time) string {
	if term != nil {
		if IsOngoing(term.Name) {
			return ""
		}
		if y, ok := leadingYear(term.SISTermID); ok {
			return yearLabel(y)
		}
		if y, ok := leadingYear(term.Name); ok {
			return yearLabel(y)
		}
	}
	if start == nil || start.IsZero() {
		return ""
	}
	y := start.Year()
	if start.Month() < time.July {
		y--
	}
	return yearLabel(y)
}

func leadingYear(s string) (int, bool) {
	if len(s) < 4 {
		return 0, false
	}
	for _, r := range s[:4] {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	y, err := strconv.Atoi(s[:4])
	return y, err == nil
}

func yearLabel(y int) string {
	return fmt.Sprintf("%d-%d", y, y+1)
}

// FullYearTerm names the term used for courses without one.
func FullYearTerm(year string) string {
	return "Full Year " + year
}

// CourseFolderName is the display name of the course folder and its catalog.
func CourseFolderName(term string, c *canvas.Course) string {
	return fmt.Sprintf("(%s) %s %s (%s)", term, c.CourseCode, c.Name, c.SISCourseID)
}

var unsafeCatalogChars = strings.NewReplacer(
	"<", "", ">", "", "*", "", "%", "", ":", "", "&", "", `\`, "", " ", "",
)

// FriendlyName is the short catalog name used in the catalog's public URL.
func FriendlyName(root, term, courseCode, sisID string) string {
	return unsafeCatalogChars.Replace(strings.Join([]string{root, term, courseCode, sisID}, "-"))
}

// CourseDirectoryEntry binds the course-wide viewer role.
func CourseDirectoryEntry(sisID, consumerKey string) string {
	return sisID + "@" + consumerKey
}

func InstructorDirectoryEntry(sisID, consumerKey string) string {
	return CourseDirectoryEntry(sisID, consumerKey) + "@" + instructorURN
}

func TADirectoryEntry(sisID, consumerKey string) string {
	return CourseDirectoryEntry(sisID, consumerKey) + "@" + taURN
}

// LearnerDirectoryEntry binds the role every LMS user gets through the LTI launch.
func LearnerDirectoryEntry(consumerKey string) string {
	return consumerKey + "@" + learnerURN
}
