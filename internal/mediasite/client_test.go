package mediasite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	c := New(server.URL, "svc", "pw", "key-123")
	c.Retry.MaxAttempts = 1
	return c
}

func writeList(w http.ResponseWriter, items ...string) {
	fmt.Fprintf(w, `{"odata.count": "%d", "value": [%s]}`, len(items), strings.Join(items, ","))
}

func TestEncodeODataString(t *testing.T) {
	testCases := []struct {
		in   string
		want string
	}{
		{"Winter", "Winter"},
		{"Intro Biology", "Intro+Biology"},
		{"O'Brien", "O%27%27Brien"},
		{"R&D", "R%26D"},
		{"(Winter) BIO-212", "%28Winter%29+BIO-212"},
	}

	for _, tc := range testCases {
		if got := EncodeODataString(tc.in); got != tc.want {
			t.Errorf("EncodeODataString(%q): expected %q, got %q", tc.in, tc.want, got)
		}
	}
}

func TestRequestHeadersAndFilter(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "svc" || pass != "pw" {
			t.Errorf("Expected basic auth, got %q/%q", user, pass)
		}
		if r.Header.Get("sfapikey") != "key-123" {
			t.Errorf("Expected sfapikey header, got %q", r.Header.Get("sfapikey"))
		}
		if got := r.URL.Query().Get("$filter"); got != "ParentFolderId eq 'p1' and Name eq 'O''Brien Lab'" {
			t.Errorf("Unexpected filter %q", got)
		}
		writeList(w)
	})

	if _, err := c.Folders(context.Background(), "O'Brien Lab", "p1"); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
}

func TestFolderExactMatch(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeList(w,
			`{"Id": "f2", "Name": "Biology", "ParentFolderId": "p1"}`,
			`{"Id": "f3", "Name": "bio", "ParentFolderId": "p1"}`,
			`{"Id": "f1", "Name": "Bio", "ParentFolderId": "p1"}`)
	})

	f, err := c.Folder(context.Background(), "Bio", "p1", "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if f == nil || f.ID != "f1" {
		t.Errorf("Expected folder f1, got %+v", f)
	}

	f, err = c.Folder(context.Background(), "Bi", "p1", "")
	if err != nil || f != nil {
		t.Errorf("Expected no folder, got %+v, %v", f, err)
	}
}

func TestGetOrCreateFolderUsesRootAndSearchTerm(t *testing.T) {
	var homeCalls, creates int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/Home":
			atomic.AddInt32(&homeCalls, 1)
			w.Write([]byte(`{"RootFolderId": "root"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/Folders":
			if got := r.URL.Query().Get("$filter"); got != "ParentFolderId eq 'root' and Name eq '12345'" {
				t.Errorf("Unexpected filter %q", got)
			}
			writeList(w)
		case r.Method == http.MethodPost && r.URL.Path == "/Folders":
			atomic.AddInt32(&creates, 1)
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["ParentFolderId"] != "root" || body["IsReviewEditApproveEnabled"] != false {
				t.Errorf("Unexpected create body %v", body)
			}
			fmt.Fprintf(w, `{"Id": "new", "Name": %q, "ParentFolderId": "root"}`, body["Name"])
		default:
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
	})

	f, err := c.GetOrCreateFolder(context.Background(), "(Winter) BIO-212 Intro Biology (12345)", "", "12345")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if f.ID != "new" || f.Name != "(Winter) BIO-212 Intro Biology (12345)" {
		t.Errorf("Unexpected folder %+v", f)
	}
	if _, err := c.RootFolderID(context.Background()); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if homeCalls != 1 || creates != 1 {
		t.Errorf("Expected 1 home call and 1 create, got %d and %d", homeCalls, creates)
	}
}

func TestRootFolderCacheSingleFlight(t *testing.T) {
	cache := NewRootFolderCache()
	var fetches int32
	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&fetches, 1)
		<-release
		return "root", nil
	}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = cache.Get(context.Background(), fetch)
		}(i)
	}
	close(release)
	wg.Wait()

	for _, r := range results {
		if r != "root" {
			t.Errorf("Expected root, got %q", r)
		}
	}
	if n := atomic.LoadInt32(&fetches); n < 1 || n > int32(len(results)) {
		t.Errorf("Unexpected fetch count %d", n)
	}

	before := atomic.LoadInt32(&fetches)
	if id, _ := cache.Get(context.Background(), fetch); id != "root" || atomic.LoadInt32(&fetches) != before {
		t.Errorf("Expected cached id without fetching")
	}

	cache.Refresh()
	refetch := func(ctx context.Context) (string, error) { return "root2", nil }
	if id, _ := cache.Get(context.Background(), refetch); id != "root2" {
		t.Errorf("Expected refreshed id root2, got %q", id)
	}
}

func TestRootFolderCacheCancelledCallerDoesNotFailOthers(t *testing.T) {
	cache := NewRootFolderCache()
	started := make(chan struct{})
	release := make(chan struct{})
	fetch := func(ctx context.Context) (string, error) {
		close(started)
		<-release
		if err := ctx.Err(); err != nil {
			return "", err
		}
		return "root", nil
	}

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := cache.Get(leaderCtx, fetch)
		leaderErr <- err
	}()
	<-started

	type result struct {
		id  string
		err error
	}
	follower := make(chan result, 1)
	go func() {
		id, err := cache.Get(context.Background(), fetch)
		follower <- result{id, err}
	}()

	cancel()
	if err := <-leaderErr; !errors.Is(err, context.Canceled) {
		t.Errorf("Expected cancelled caller to get context.Canceled, got %v", err)
	}
	close(release)

	got := <-follower
	if got.err != nil || got.id != "root" {
		t.Errorf("Expected follower to get root, got %q, %v", got.id, got.err)
	}
	if id, err := cache.Get(context.Background(), fetch); err != nil || id != "root" {
		t.Errorf("Expected cached root, got %q, %v", id, err)
	}
}

func TestGetOrCreateFolderRefreshesStaleRoot(t *testing.T) {
	var homes int32
	root := "old-root"
	var mu sync.Mutex
	var created []string
	handler := func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/Home":
			atomic.AddInt32(&homes, 1)
			mu.Lock()
			fmt.Fprintf(w, `{"RootFolderId": %q}`, root)
			mu.Unlock()
		case r.Method == http.MethodGet && r.URL.Path == "/Folders":
			writeList(w)
		case r.Method == http.MethodPost && r.URL.Path == "/Folders":
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			parent, _ := body["ParentFolderId"].(string)
			if parent == "old-root" {
				w.WriteHeader(http.StatusNotFound)
				w.Write([]byte(`{"odata.error": {"message": {"value": "folder not found"}}}`))
				return
			}
			mu.Lock()
			created = append(created, parent)
			mu.Unlock()
			fmt.Fprintf(w, `{"Id": "f1", "Name": %q, "ParentFolderId": %q}`, body["Name"], parent)
		default:
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
	}

	shared := NewRootFolderCache()
	c := newTestClient(t, handler)
	c.Root = shared
	other := New(c.BaseURL, "svc", "pw", "key-123", WithRootFolderCache(shared))
	other.Retry.MaxAttempts = 1

	if id, err := other.RootFolderID(context.Background()); err != nil || id != "old-root" {
		t.Fatalf("Expected old-root, got %q, %v", id, err)
	}
	mu.Lock()
	root = "new-root"
	mu.Unlock()

	f, err := c.GetOrCreateFolder(context.Background(), "ProofOfConcept", "", "")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if f.ParentFolderID != "new-root" || len(created) != 1 || created[0] != "new-root" {
		t.Errorf("Expected folder under new-root, got %+v (created %v)", f, created)
	}
	if n := atomic.LoadInt32(&homes); n != 2 {
		t.Errorf("Expected 2 Home calls, got %d", n)
	}
	if id, _ := other.RootFolderID(context.Background()); id != "new-root" {
		t.Errorf("Expected shared cache to hold new-root, got %q", id)
	}
}

func TestRootFolderCacheDoesNotCacheErrors(t *testing.T) {
	cache := NewRootFolderCache()
	boom := errors.New("boom")
	if _, err := cache.Get(context.Background(), func(context.Context) (string, error) { return "", boom }); !errors.Is(err, boom) {
		t.Errorf("Expected boom, got %v", err)
	}
	id, err := cache.Get(context.Background(), func(context.Context) (string, error) { return "root", nil })
	if err != nil || id != "root" {
		t.Errorf("Expected root after failed fetch, got %q, %v", id, err)
	}
}

func TestCatalogRequiresLinkedFolder(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeList(w,
			`{"Id": "c1", "Name": "Course", "LinkedFolderId": "other"}`,
			`{"Id": "c2", "Name": "Course", "LinkedFolderId": "f1"}`)
	})

	cat, err := c.Catalog(context.Background(), "Course", "f1", "12345")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cat == nil || cat.ID != "c2" {
		t.Errorf("Expected catalog c2, got %+v", cat)
	}

	cat, err = c.Catalog(context.Background(), "Course", "f9", "")
	if err != nil || cat != nil {
		t.Errorf("Expected no catalog, got %+v, %v", cat, err)
	}
}

func TestCatalogIgnoresUnlinkedCandidates(t *testing.T) {
	var posts int
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			posts++
		}
		writeList(w,
			`{"Id": "search-1", "Name": "12345 search results", "LinkedFolderId": null}`,
			`{"Id": "c2", "Name": "Course", "LinkedFolderId": "f-leaf"}`)
	})

	cat, err := c.GetOrCreateCatalog(context.Background(), "Friendly", "Course", "f-leaf", "12345")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if cat == nil || cat.ID != "c2" {
		t.Errorf("Expected catalog c2, got %+v", cat)
	}
	if posts != 0 {
		t.Errorf("Expected no create, got %d", posts)
	}
}

func TestCreateCatalogRejectsUnlinkedResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Id": "c9", "Name": "Course", "LinkedFolderId": null}`))
	})
	_, err := c.CreateCatalog(context.Background(), "Friendly", "Course", "f-leaf")
	var se *ServiceError
	if !errors.As(err, &se) || se.Kind != KindDecode {
		t.Errorf("Expected decode error, got %v", err)
	}
}

func TestSetCatalogSettings(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/Catalogs('c1')/Settings" {
			t.Errorf("Unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		want := map[string]any{
			"ShowTablePresentationDate": true,
			"ShowTablePresentationTime": false,
			"ShowCardPresentationDate":  true,
			"ShowCardPresentationTime":  false,
			"PresentationsPerPage":      float64(25),
			"AllowLoginControls":        false,
		}
		for k, v := range want {
			if body[k] != v {
				t.Errorf("Expected %s=%v, got %v", k, v, body[k])
			}
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.SetCatalogSettings(context.Background(), "c1", CatalogSettings{ShowDate: true, ItemsPerPage: 25}); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
}

func TestModuleNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"odata.error": {"code": "", "message": {"lang": "en-US", "value": "Module not found"}}}`))
	})

	m, err := c.Module(context.Background(), "m1")
	if err != nil || m != nil {
		t.Errorf("Expected nil module and no error, got %+v, %v", m, err)
	}
}

func TestModuleByModuleID(t *testing.T) {
	testCases := []struct {
		name    string
		body    string
		wantID  string
		wantErr error
	}{
		{"none", `{"odata.count": "0", "value": []}`, "", nil},
		{"exact among superset", `{"odata.count": "2", "value": [{"Id": "a", "ModuleId": "12345-01"}, {"Id": "b", "ModuleId": "12345"}]}`, "b", nil},
		{"ambiguous", `{"odata.count": "2", "value": [{"Id": "a", "ModuleId": "12345"}, {"Id": "b", "ModuleId": "12345"}]}`, "", ErrAmbiguousModule},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tc.body))
			})
			m, err := c.ModuleByModuleID(context.Background(), "12345")
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Errorf("Expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if tc.wantID == "" && m != nil {
				t.Errorf("Expected nil module, got %+v", m)
			}
			if tc.wantID != "" && (m == nil || m.ID != tc.wantID) {
				t.Errorf("Expected module %s, got %+v", tc.wantID, m)
			}
		})
	}
}

func TestAddModuleAssociation(t *testing.T) {
	calls := 0
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.URL.Path != "/Modules('m1')/AddAssociation" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["MediasiteId"] != "c1" {
			t.Errorf("Unexpected body %v", body)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	for i := 0; i < 2; i++ {
		if err := c.AddModuleAssociation(context.Background(), "m1", "c1"); err != nil {
			t.Errorf("Expected no error on attempt %d, got %v", i+1, err)
		}
	}
	if calls != 2 {
		t.Errorf("Expected 2 calls, got %d", calls)
	}
}

func TestGetOrCreateRoleConflict(t *testing.T) {
	created := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			created = true
			w.Write([]byte(`{"Id": "new"}`))
			return
		}
		filter := r.URL.Query().Get("$filter")
		if strings.HasPrefix(filter, "DirectoryEntry") {
			writeList(w)
			return
		}
		writeList(w, `{"Id": "r1", "Name": "X", "DirectoryEntry": "dir@B"}`)
	})

	_, err := c.GetOrCreateRole(context.Background(), "X", "dir@A")
	if !errors.Is(err, ErrRoleConflict) {
		t.Fatalf("Expected role conflict, got %v", err)
	}
	var rc *RoleConflictError
	if !errors.As(err, &rc) || rc.Existing.DirectoryEntry != "dir@B" {
		t.Errorf("Unexpected conflict detail %+v", rc)
	}
	if created {
		t.Error("Expected no create call")
	}
}

func TestGetOrCreateRole(t *testing.T) {
	var posted map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			json.NewDecoder(r.Body).Decode(&posted)
			fmt.Fprintf(w, `{"Id": "new", "Name": %q, "DirectoryEntry": %q}`, posted["Name"], posted["DirectoryEntry"])
			return
		}
		filter := r.URL.Query().Get("$filter")
		if strings.HasPrefix(filter, "DirectoryEntry") {
			writeList(w, `{"Id": "r9", "Name": "Other", "DirectoryEntry": "12345@key@urn:lti:role:ims/lis/Instructor"}`)
			return
		}
		writeList(w, `{"Id": "r8", "Name": "12345 Students"}`)
	})

	r, err := c.GetOrCreateRole(context.Background(), "12345", "12345@key")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if r.ID != "new" || posted["DirectoryEntry"] != "12345@key" {
		t.Errorf("Expected created role, got %+v from %v", r, posted)
	}
}

func TestFolderPermissionsUpdate(t *testing.T) {
	p := &FolderPermissions{Owner: "admin", Permissions: []AccessControl{{RoleID: "a", PermissionMask: ViewOnly}}}

	p.Update("r", NoAccess)
	if len(p.Permissions) != 1 {
		t.Fatalf("Expected no-op, got %+v", p.Permissions)
	}

	p.Update("r", ReadWrite)
	if len(p.Permissions) != 2 || p.Mask("r") != ReadWrite {
		t.Fatalf("Expected appended entry, got %+v", p.Permissions)
	}

	p.Update("a", ReadOnly)
	if p.Mask("a") != ReadOnly || len(p.Permissions) != 2 {
		t.Errorf("Expected overwritten mask, got %+v", p.Permissions)
	}

	p.Update("r", NoAccess)
	if len(p.Permissions) != 1 || p.Permissions[0].RoleID != "a" {
		t.Errorf("Expected only r removed, got %+v", p.Permissions)
	}
}

func TestFolderPermissionsRoundTrip(t *testing.T) {
	var written FolderPermissions
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ResourcePermissions('f1')":
			w.Write([]byte(`{"Id": "f1", "Owner": "admin", "InheritPermissions": true,
				"AccessControlList": [{"RoleId": "auth", "PermissionMask": 4}]}`))
		case "/Folders('f1')/UpdatePermissions":
			json.NewDecoder(r.Body).Decode(&written)
			w.Write([]byte(`{"Id": "job"}`))
		default:
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
	})

	p, err := c.FolderPermissions(context.Background(), "f1")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	p.Update("auth", NoAccess)
	p.Update("teacher", ReadWrite)
	if err := c.AssignPermissions(context.Background(), "f1", p); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if written.Owner != "admin" || len(written.Permissions) != 1 || written.Permissions[0].RoleID != "teacher" {
		t.Errorf("Unexpected written permissions %+v", written)
	}
}

func TestUserByEmail(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("$filter"); got != "endswith(Email, 'ada@example.edu')" {
			t.Errorf("Unexpected filter %q", got)
		}
		writeList(w,
			`{"Id": "u1", "UserName": "grada", "Email": "grada@example.edu"}`,
			`{"Id": "u2", "UserName": "ada", "Email": "Ada@Example.edu"}`)
	})

	u, err := c.UserByEmail(context.Background(), "ada@example.edu")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if u == nil || u.ID != "u2" {
		t.Errorf("Expected u2, got %+v", u)
	}
}

func TestProfileRoleID(t *testing.T) {
	id, err := ProfileRoleID("0123456789abcdef0123456789abcdef29")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if id != "01234567-89ab-cdef-0123-456789abcdef" {
		t.Errorf("Unexpected role id %q", id)
	}

	if _, err := ProfileRoleID("short"); !errors.Is(err, ErrInvalidProfileID) {
		t.Errorf("Expected ErrInvalidProfileID, got %v", err)
	}
	if _, err := ProfileRoleID("zz23456789abcdef0123456789abcdef"); !errors.Is(err, ErrInvalidProfileID) {
		t.Errorf("Expected ErrInvalidProfileID, got %v", err)
	}
}

func TestServiceErrorRemoteMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"odata.error": {"code": "", "message": {"lang": "en-US", "value": "Name is required"}}}`))
	})

	_, err := c.CreateRole(context.Background(), "", "x")
	var se *ServiceError
	if !errors.As(err, &se) {
		t.Fatalf("Expected ServiceError, got %T", err)
	}
	if se.StatusCode != 400 || se.RemoteMessage != "Name is required" || se.Kind != KindStatus {
		t.Errorf("Unexpected error %+v", se)
	}
	if !strings.Contains(err.Error(), "Name is required") {
		t.Errorf("Expected message in error string, got %q", err.Error())
	}
}
