// Package canvas is a typed client for the Canvas LMS REST API, acting on
// behalf of one user through that user's bearer token.
package canvas

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"mediasite-provisioning/internal/httpx"
	"mediasite-provisioning/internal/logging"
)

const defaultPageSize = 50

type Client struct {
	BaseURL  string
	Token    string
	HTTP     *http.Client
	PageSize int
	Retry    httpx.RetryConfig
	Log      *zap.Logger
}

func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:  strings.TrimRight(baseURL, "/"),
		Token:    token,
		PageSize: defaultPageSize,
		Retry:    httpx.DefaultRetryConfig(),
		Log:      zap.NewNop(),
		HTTP: &http.Client{
			Timeout: 2 * time.Minute,
		},
	}
}

func (c *Client) apiURL(path string, q url.Values) string {
	u := c.BaseURL + "/api/v1/" + strings.TrimLeft(path, "/")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) header() http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+c.Token)
	return h
}

// do sends one request and returns the raw body plus the pagination links.
func (c *Client) do(ctx context.Context, op, method, rawURL string, body any) ([]byte, PageLinks, error) {
	build, err := httpx.JSONRequest(method, rawURL, body, c.header())
	if err != nil {
		return nil, PageLinks{}, wrapErr(op, err)
	}

	log := logging.OrNop(c.Log)
	start := time.Now()
	resp, b, err := httpx.DoWithRetry(ctx, c.HTTP, build, c.Retry)
	elapsed := time.Since(start)
	if err != nil {
		log.Info("canvas call failed",
			zap.String("op", op), zap.String("method", method), zap.Duration("elapsed", elapsed), zap.Error(err))
		return nil, PageLinks{}, wrapErr(op, err)
	}
	log.Debug("canvas call",
		zap.String("op", op), zap.String("method", method), zap.String("url", rawURL), zap.Duration("elapsed", elapsed))
	return b, parseLinks(resp.Header), nil
}

func (c *Client) pageSize() int {
	if c.PageSize <= 0 {
		return defaultPageSize
	}
	return c.PageSize
}

// listAll follows rel="next" links until the last page.
func listAll[T validatable](ctx context.Context, c *Client, op, path string, q url.Values) ([]T, error) {
	if q == nil {
		q = url.Values{}
	}
	q.Set("per_page", strconv.Itoa(c.pageSize()))

	var all []T
	next := c.apiURL(path, q)
	for next != "" {
		b, links, err := c.do(ctx, op, http.MethodGet, next, nil)
		if err != nil {
			return all, err
		}
		page, err := decodeMany[T](b)
		if err != nil {
			return all, wrapErr(op, &httpx.DecodeError{Err: err, Body: b})
		}
		all = append(all, page...)
		next = links.nextURL
	}
	return all, nil
}

func getOne[T validatable](ctx context.Context, c *Client, op, method, rawURL string, body any) (T, error) {
	var zero T
	b, _, err := c.do(ctx, op, method, rawURL, body)
	if err != nil {
		return zero, err
	}
	v, err := decodeOne[T](b)
	if err != nil {
		return zero, wrapErr(op, &httpx.DecodeError{Err: err, Body: b})
	}
	return v, nil
}

// Accounts returns the accounts the current user can administer.
func (c *Client) Accounts(ctx context.Context) ([]Account, error) {
	return listAll[Account](ctx, c, "list accounts", "accounts", nil)
}

// CoursePage is one page of a course search.
type CoursePage struct {
	Courses []Course
	Links   PageLinks
}

// SearchCourses returns one page of courses in accountID matching term.
// Pass the empty token for the first page and Links.Next for the following ones.
func (c *Client) SearchCourses(ctx context.Context, accountID int64, term string, page PageToken) (*CoursePage, error) {
	term = strings.TrimSpace(term)
	if len([]rune(term)) < 3 {
		return nil, ErrSearchTermTooShort
	}
	const op = "search courses"

	q := url.Values{}
	q.Set("search_term", term)
	q.Add("include[]", "term")
	q.Set("per_page", strconv.Itoa(c.pageSize()))
	if page != "" {
		q.Set("page", string(page))
	}

	b, links, err := c.do(ctx, op, http.MethodGet, c.apiURL(fmt.Sprintf("accounts/%d/courses", accountID), q), nil)
	if err != nil {
		return nil, err
	}
	courses, err := decodeMany[Course](b)
	if err != nil {
		return nil, wrapErr(op, &httpx.DecodeError{Err: err, Body: b})
	}
	return &CoursePage{Courses: courses, Links: links}, nil
}

// Course fetches one course with its term expanded.
func (c *Client) Course(ctx context.Context, courseID int64) (*Course, error) {
	q := url.Values{}
	q.Add("include[]", "term")
	course, err := getOne[Course](ctx, c, "get course", http.MethodGet, c.apiURL(fmt.Sprintf("courses/%d", courseID), q), nil)
	if err != nil {
		return nil, err
	}
	return &course, nil
}

// TeachingEnrollments returns teacher and TA enrollments for a course.
// With includeEmail, each distinct user's profile is fetched to fill User.Email;
// that is one extra call per user.
func (c *Client) TeachingEnrollments(ctx context.Context, courseID int64, includeEmail bool) ([]Enrollment, error) {
	q := url.Values{}
	q.Add("type[]", TeacherEnrollment)
	q.Add("type[]", TaEnrollment)
	enrollments, err := listAll[Enrollment](ctx, c, "list enrollments", fmt.Sprintf("courses/%d/enrollments", courseID), q)
	if err != nil || !includeEmail {
		return enrollments, err
	}

	emails := map[int64]string{}
	for i := range enrollments {
		uid := enrollments[i].UserID
		if uid == 0 {
			uid = enrollments[i].User.ID
		}
		email, seen := emails[uid]
		if !seen {
			p, err := c.Profile(ctx, uid)
			if err != nil {
				return nil, err
			}
			email = p.PrimaryEmail
			emails[uid] = email
		}
		enrollments[i].User.Email = email
	}
	return enrollments, nil
}

type profile struct{ Profile }

func (p profile) validate() error {
	if p.ID == 0 {
		return fmt.Errorf("profile: missing id")
	}
	return nil
}

func (c *Client) Profile(ctx context.Context, userID int64) (*Profile, error) {
	p, err := getOne[profile](ctx, c, "get profile", http.MethodGet, c.apiURL(fmt.Sprintf("users/%d/profile", userID), nil), nil)
	if err != nil {
		return nil, err
	}
	return &p.Profile, nil
}
