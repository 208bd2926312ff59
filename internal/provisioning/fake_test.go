package provisioning

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"

	"mediasite-provisioning/internal/canvas"
	"mediasite-provisioning/internal/httpx"
	"mediasite-provisioning/internal/mediasite"
)

// fakeHost is an in-memory Mediasite. Like the real service, its "eq"
// filter is a case-insensitive contains.
type fakeHost struct {
	mu sync.Mutex

	rootID   string
	seq      int
	folders  []*mediasite.Folder
	catalogs []*mediasite.Catalog
	settings map[string]mediasite.CatalogSettings
	roles    []*mediasite.Role
	modules  []*mediasite.Module
	users    []*mediasite.UserProfile
	acls     map[string][]mediasite.AccessControl

	creates     map[string]int
	permWrites  map[string]int
	failCreates map[string]int // collection -> create number that fails with 500
}

func newFakeHost() *fakeHost {
	h := &fakeHost{
		rootID:      "root",
		settings:    map[string]mediasite.CatalogSettings{},
		acls:        map[string][]mediasite.AccessControl{},
		creates:     map[string]int{},
		permWrites:  map[string]int{},
		failCreates: map[string]int{},
	}
	h.roles = append(h.roles, &mediasite.Role{ID: "role-auth", Name: AuthenticatedUsersRole})
	return h
}

// client starts an HTTP server for h and returns a Mediasite client pointed at it.
func (h *fakeHost) client(t *testing.T) *mediasite.Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	retry := httpx.DefaultRetryConfig()
	retry.MaxAttempts = 1
	return mediasite.New(server.URL, "svc", "pw", "api-key", mediasite.WithRetry(retry))
}

func (h *fakeHost) nextID(prefix string) string {
	h.seq++
	return fmt.Sprintf("%s-%04d", prefix, h.seq)
}

func (h *fakeHost) addFolder(name, parentID string) *mediasite.Folder {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := &mediasite.Folder{ID: h.nextID("folder"), Name: name, ParentFolderID: parentID}
	h.folders = append(h.folders, f)
	h.acls[f.ID] = []mediasite.AccessControl{{RoleID: "role-auth", PermissionMask: mediasite.ViewOnly}}
	return f
}

func (h *fakeHost) addRole(name, entry string) *mediasite.Role {
	h.mu.Lock()
	defer h.mu.Unlock()
	r := &mediasite.Role{ID: h.nextID("role"), Name: name, DirectoryEntry: entry}
	h.roles = append(h.roles, r)
	return r
}

func (h *fakeHost) folderPath(leafID string) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var names []string
	for id := leafID; id != h.rootID; {
		var f *mediasite.Folder
		for _, c := range h.folders {
			if c.ID == id {
				f = c
			}
		}
		if f == nil {
			break
		}
		names = append([]string{f.Name}, names...)
		id = f.ParentFolderID
	}
	return names
}

func (h *fakeHost) acl(folderID string) map[string]mediasite.PermissionMask {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := map[string]mediasite.PermissionMask{}
	for _, ac := range h.acls[folderID] {
		out[ac.RoleID] = ac.PermissionMask
	}
	return out
}

func (h *fakeHost) roleByEntry(entry string) *mediasite.Role {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.roles {
		if r.DirectoryEntry == entry {
			return r
		}
	}
	return nil
}

func (h *fakeHost) count(collection string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.creates[collection]
}

var (
	eqClause       = regexp.MustCompile(`(\w+) eq '((?:[^']|'')*)'`)
	endswithClause = regexp.MustCompile(`endswith\((\w+), '((?:[^']|'')*)'\)`)
	keyed          = regexp.MustCompile(`^/(\w+)\('([^']*)'\)(?:/(\w+))?$`)
)

func unquote(s string) string { return strings.ReplaceAll(s, "''", "'") }

func loose(have, want string) bool {
	return strings.Contains(strings.ToLower(have), strings.ToLower(want))
}

func (h *fakeHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if r.Header.Get("sfapikey") != "api-key" {
		writeODataError(w, http.StatusUnauthorized, "missing api key")
		return
	}

	if m := keyed.FindStringSubmatch(r.URL.Path); m != nil {
		h.serveKeyed(w, r, m[1], m[2], m[3])
		return
	}

	filter := r.URL.Query().Get("$filter")
	eq := map[string]string{}
	for _, m := range eqClause.FindAllStringSubmatch(filter, -1) {
		eq[m[1]] = unquote(m[2])
	}

	switch r.Method + " " + r.URL.Path {
	case "GET /Home":
		writeJSON(w, mediasite.Home{RootFolderID: h.rootID})

	case "GET /Folders":
		var out []mediasite.Folder
		for _, f := range h.folders {
			if f.ParentFolderID == eq["ParentFolderId"] && loose(f.Name, eq["Name"]) {
				out = append(out, *f)
			}
		}
		writeList(w, out)

	case "POST /Folders":
		var body struct {
			Name           string
			ParentFolderId string
		}
		if !h.create(w, r, "Folders", &body) {
			return
		}
		f := &mediasite.Folder{ID: h.nextID("folder"), Name: body.Name, ParentFolderID: body.ParentFolderId}
		h.folders = append(h.folders, f)
		h.acls[f.ID] = []mediasite.AccessControl{{RoleID: "role-auth", PermissionMask: mediasite.ViewOnly}}
		writeJSON(w, f)

	case "GET /Catalogs":
		var out []mediasite.Catalog
		for _, c := range h.catalogs {
			if loose(c.Name, eq["Name"]) {
				out = append(out, *c)
			}
		}
		writeList(w, out)

	case "POST /Catalogs":
		var body struct {
			FriendlyName   string
			Name           string
			LinkedFolderId string
		}
		if !h.create(w, r, "Catalogs", &body) {
			return
		}
		c := &mediasite.Catalog{
			ID:             h.nextID("catalog"),
			Name:           body.Name,
			FriendlyName:   body.FriendlyName,
			LinkedFolderID: body.LinkedFolderId,
			CatalogURL:     "https://mediasite.example.edu/Mediasite/Catalog/catalogs/" + body.FriendlyName,
		}
		h.catalogs = append(h.catalogs, c)
		writeJSON(w, c)

	case "GET /Roles":
		var out []mediasite.Role
		for _, role := range h.roles {
			if v, ok := eq["DirectoryEntry"]; ok && !loose(role.DirectoryEntry, v) {
				continue
			}
			if v, ok := eq["Name"]; ok && !loose(role.Name, v) {
				continue
			}
			out = append(out, *role)
		}
		writeList(w, out)

	case "POST /Roles":
		var body struct{ Name, DirectoryEntry string }
		if !h.create(w, r, "Roles", &body) {
			return
		}
		role := &mediasite.Role{ID: h.nextID("role"), Name: body.Name, DirectoryEntry: body.DirectoryEntry}
		h.roles = append(h.roles, role)
		writeJSON(w, role)

	case "GET /Modules":
		var out []mediasite.Module
		for _, m := range h.modules {
			if loose(m.ModuleID, eq["ModuleId"]) {
				out = append(out, *m)
			}
		}
		writeList(w, out)

	case "POST /Modules":
		var body struct {
			ModuleId     string
			Name         string
			Associations []string
		}
		if !h.create(w, r, "Modules", &body) {
			return
		}
		m := &mediasite.Module{ID: h.nextID("module"), ModuleID: body.ModuleId, Name: body.Name, Associations: body.Associations}
		h.modules = append(h.modules, m)
		writeJSON(w, m)

	case "GET /UserProfiles":
		var out []mediasite.UserProfile
		if m := endswithClause.FindStringSubmatch(filter); m != nil {
			for _, u := range h.users {
				if strings.HasSuffix(strings.ToLower(u.Email), strings.ToLower(unquote(m[2]))) {
					out = append(out, *u)
				}
			}
		}
		writeList(w, out)

	case "POST /UserProfiles":
		var body mediasite.UserProfile
		if !h.create(w, r, "UserProfiles", &body) {
			return
		}
		body.ID = fmt.Sprintf("%032x%02d", h.seq+1, h.seq+1)
		h.seq++
		u := body
		h.users = append(h.users, &u)
		writeJSON(w, u)

	default:
		writeODataError(w, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path)
	}
}

func (h *fakeHost) serveKeyed(w http.ResponseWriter, r *http.Request, collection, id, action string) {
	switch {
	case collection == "ResourcePermissions" && r.Method == http.MethodGet:
		acl, ok := h.acls[id]
		if !ok {
			writeODataError(w, http.StatusNotFound, "resource not found")
			return
		}
		writeJSON(w, mediasite.ResourcePermission{ID: id, Owner: "admin", InheritPermissions: true, AccessControlList: acl})

	case collection == "Folders" && action == "UpdatePermissions" && r.Method == http.MethodPost:
		var body mediasite.FolderPermissions
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeODataError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.acls[id] = body.Permissions
		h.permWrites[id]++
		writeJSON(w, map[string]string{"Id": "job-" + id})

	case collection == "Catalogs" && action == "Settings" && r.Method == http.MethodPatch:
		var body struct {
			ShowTablePresentationDate bool
			ShowTablePresentationTime bool
			PresentationsPerPage      int
		}
		json.NewDecoder(r.Body).Decode(&body)
		h.settings[id] = mediasite.CatalogSettings{
			ShowDate:     body.ShowTablePresentationDate,
			ShowTime:     body.ShowTablePresentationTime,
			ItemsPerPage: body.PresentationsPerPage,
		}
		w.WriteHeader(http.StatusNoContent)

	case collection == "Modules" && action == "AddAssociation" && r.Method == http.MethodPost:
		var body struct{ MediasiteId string }
		json.NewDecoder(r.Body).Decode(&body)
		for _, m := range h.modules {
			if m.ID != id {
				continue
			}
			for _, a := range m.Associations {
				if a == body.MediasiteId {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			m.Associations = append(m.Associations, body.MediasiteId)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeODataError(w, http.StatusNotFound, "module not found")

	default:
		writeODataError(w, http.StatusNotFound, "no route for "+r.Method+" "+r.URL.Path)
	}
}

// create decodes a create body and applies failCreates. It reports whether
// the handler should go on.
func (h *fakeHost) create(w http.ResponseWriter, r *http.Request, collection string, body any) bool {
	if err := json.NewDecoder(r.Body).Decode(body); err != nil {
		writeODataError(w, http.StatusBadRequest, err.Error())
		return false
	}
	h.creates[collection]++
	if n, ok := h.failCreates[collection]; ok && n == h.creates[collection] {
		writeODataError(w, http.StatusInternalServerError, collection+" unavailable")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeList[T any](w http.ResponseWriter, items []T) {
	if items == nil {
		items = []T{}
	}
	writeJSON(w, map[string]any{"odata.count": fmt.Sprint(len(items)), "value": items})
}

func writeODataError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	fmt.Fprintf(w, `{"odata.error": {"code": "", "message": {"lang": "en-US", "value": %q}}}`, msg)
}

// fakeLMS is an in-memory Canvas course.
type fakeLMS struct {
	mu          sync.Mutex
	course      canvas.Course
	courseErr   error
	enrollments []canvas.Enrollment
	tools       []canvas.ExternalTool
	items       []canvas.ModuleItem
	links       []canvas.ExternalToolLink
}

func (l *fakeLMS) Course(ctx context.Context, courseID int64) (*canvas.Course, error) {
	if l.courseErr != nil {
		return nil, l.courseErr
	}
	c := l.course
	return &c, nil
}

func (l *fakeLMS) TeachingEnrollments(ctx context.Context, courseID int64, includeEmail bool) ([]canvas.Enrollment, error) {
	return l.enrollments, nil
}

func (l *fakeLMS) CreateMediasiteAppExternalLink(ctx context.Context, courseID int64, link canvas.ExternalToolLink) (*canvas.ExternalTool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.links = append(l.links, link)
	for i := range l.tools {
		if l.tools[i].URL == link.URL {
			return &l.tools[i], nil
		}
	}
	l.tools = append(l.tools, canvas.ExternalTool{ID: int64(len(l.tools) + 1), Name: link.Name, URL: link.URL, ConsumerKey: link.ConsumerKey})
	return &l.tools[len(l.tools)-1], nil
}

func (l *fakeLMS) GetOrCreateMediasiteModuleItem(ctx context.Context, courseID int64, moduleName, itemTitle, externalURL string) (*canvas.ModuleItem, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		if l.items[i].Title == itemTitle {
			return &l.items[i], nil
		}
	}
	l.items = append(l.items, canvas.ModuleItem{ID: int64(len(l.items) + 1), Title: itemTitle, ExternalURL: externalURL})
	return &l.items[len(l.items)-1], nil
}
