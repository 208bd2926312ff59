// Package provisioning builds the video host folder, catalog and permission
// set for one LMS course and links the catalog back into the course.
//
// Every step is a get-or-create, so running the same course again converges
// on the same remote state instead of duplicating it.
package provisioning

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"mediasite-provisioning/internal/canvas"
	"mediasite-provisioning/internal/logging"
	"mediasite-provisioning/internal/mediasite"
)

// LMS is the part of the Canvas client the workflow needs.
type LMS interface {
	Course(ctx context.Context, courseID int64) (*canvas.Course, error)
	TeachingEnrollments(ctx context.Context, courseID int64, includeEmail bool) ([]canvas.Enrollment, error)
	CreateMediasiteAppExternalLink(ctx context.Context, courseID int64, link canvas.ExternalToolLink) (*canvas.ExternalTool, error)
	GetOrCreateMediasiteModuleItem(ctx context.Context, courseID int64, moduleName, itemTitle, externalURL string) (*canvas.ModuleItem, error)
}

// VideoHost is the part of the Mediasite client the workflow needs.
type VideoHost interface {
	GetOrCreateFolder(ctx context.Context, name, parentID, search string) (*mediasite.Folder, error)
	GetOrCreateCatalog(ctx context.Context, friendlyName, name, folderID, search string) (*mediasite.Catalog, error)
	SetCatalogSettings(ctx context.Context, catalogID string, s mediasite.CatalogSettings) error
	GetOrCreateModule(ctx context.Context, moduleID, name, catalogID string) (*mediasite.Module, error)
	AddModuleAssociation(ctx context.Context, moduleID, mediasiteID string) error
	GetOrCreateRole(ctx context.Context, name, entry string) (*mediasite.Role, error)
	FindRole(ctx context.Context, name, entry string) (*mediasite.Role, error)
	FolderPermissions(ctx context.Context, folderID string) (*mediasite.FolderPermissions, error)
	AssignPermissions(ctx context.Context, folderID string, p *mediasite.FolderPermissions) error
	GetOrCreateUser(ctx context.Context, u mediasite.UserProfile) (*mediasite.UserProfile, error)
}

// Credentials is the LTI consumer key and shared secret pair of a tenant.
type Credentials struct {
	ConsumerKey  string
	SharedSecret string
}

func (c Credentials) empty() bool { return c.ConsumerKey == "" || c.SharedSecret == "" }

// Tenant is the per-account configuration read from the store.
type Tenant struct {
	Name        string
	RootFolder  string
	Credentials Credentials
	Catalog     mediasite.CatalogSettings
}

// Options are the deployment-wide workflow settings.
type Options struct {
	// LinkName is the course navigation label; a term suffix is added when taken.
	LinkName string
	// ModuleName, when set, also adds the catalog link as an item of that course module.
	ModuleName string
	// LinkModule associates a host module keyed by the SIS course id with the catalog.
	LinkModule bool
	// ProvisionUserProfiles grants each teacher read-write through a personal profile.
	ProvisionUserProfiles bool
	// DefaultCredentials is used for tenants without their own pair.
	DefaultCredentials Credentials
	// CatalogDefaults applies when the tenant has no page size configured.
	CatalogDefaults mediasite.CatalogSettings
}

// DefaultOptions labels the link "Mediasite" and shows dates and times, ten per page.
func DefaultOptions() Options {
	return Options{
		LinkName:        "Mediasite",
		CatalogDefaults: mediasite.CatalogSettings{ShowDate: true, ShowTime: true, ItemsPerPage: 10},
	}
}

// Request selects the course to provision. TermName, Year and RootFolderName
// override what would be derived from the course and tenant.
type Request struct {
	CourseID       int64
	AccountID      int64
	RootFolderName string
	TermName       string
	Year           string
	Tenant         Tenant
	ActingUser     string
}

// Result is what a run created or found, as far as it got.
type Result struct {
	CourseID   int64
	CatalogURL string
	CatalogID  string
	FolderIDs  []string
	Roles      map[string]string
	State      State
}

// Provisioner runs the workflow against one LMS and one video host.
type Provisioner struct {
	lms  LMS
	host VideoHost
	opts Options
	log  *zap.Logger
}

// New fills unset link name and catalog defaults from DefaultOptions.
func New(lms LMS, host VideoHost, opts Options, logger *zap.Logger) *Provisioner {
	if opts.LinkName == "" {
		opts.LinkName = DefaultOptions().LinkName
	}
	if opts.CatalogDefaults.ItemsPerPage <= 0 {
		opts.CatalogDefaults = DefaultOptions().CatalogDefaults
	}
	return &Provisioner{lms: lms, host: host, opts: opts, log: logging.OrNop(logger)}
}

// run carries the state of one Run call.
type run struct {
	p      *Provisioner
	req    Request
	res    *Result
	log    *zap.Logger
	creds  Credentials
	course *canvas.Course
	root   string
	term   string
	year   string
	folder *mediasite.Folder
	cat    *mediasite.Catalog
	perms  *mediasite.FolderPermissions
}

// Run provisions one course. On failure the returned Result reports Failed
// and the error is a *Error; objects created before the failure stay in place.
func (p *Provisioner) Run(ctx context.Context, req Request) (*Result, error) {
	r := &run{
		p:   p,
		req: req,
		res: &Result{CourseID: req.CourseID, State: Start, Roles: map[string]string{}},
		log: p.log.With(zap.Int64("course_id", req.CourseID), zap.String("user", req.ActingUser)),
	}
	r.creds = req.Tenant.Credentials
	if r.creds.empty() {
		r.creds = p.opts.DefaultCredentials
	}

	steps := []struct {
		next State
		fn   func(context.Context) error
	}{
		{FolderResolved, r.resolveFolders},
		{CatalogResolved, r.resolveCatalog},
		{PermissionsComputed, r.computePermissions},
		{PermissionsFlushed, r.flushPermissions},
		{LinkWritten, r.writeLink},
	}
	for _, s := range steps {
		if err := s.fn(ctx); err != nil {
			kind := classify(err)
			r.log.Error("provisioning failed",
				zap.Stringer("state", r.res.State), zap.Stringer("step", s.next), zap.Stringer("kind", kind), zap.Error(err))
			r.res.State = Failed
			return r.res, &Error{Kind: kind, Step: s.next, Err: err}
		}
		r.transition(s.next)
	}
	r.transition(Done)
	return r.res, nil
}

func (r *run) transition(s State) {
	r.log.Debug("provisioning state", zap.Stringer("from", r.res.State), zap.Stringer("to", s))
	r.res.State = s
}

// folderLevel is one folder of the course path. search, when set, is sent
// to the host instead of the full name.
type folderLevel struct {
	name   string
	search string
}

func (r *run) resolveFolders(ctx context.Context) error {
	if r.creds.ConsumerKey == "" {
		return ErrMissingCredentials
	}
	course, err := r.p.lms.Course(ctx, r.req.CourseID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(course.SISCourseID) == "" {
		return fmt.Errorf("%w: course %d", ErrMissingSISCourseID, course.ID)
	}
	r.course = course

	r.term = strings.TrimSpace(r.req.TermName)
	if r.term == "" && course.Term != nil {
		r.term = strings.TrimSpace(course.Term.Name)
	}
	ongoing := IsOngoing(r.term)

	r.year = strings.TrimSpace(r.req.Year)
	if r.year == "" && !ongoing {
		r.year = ResolveYear(course.Term, course.StartAt)
	}
	if ongoing {
		r.year = ""
	} else if r.year == "" {
		return fmt.Errorf("%w: course %s", ErrMissingYear, course.SISCourseID)
	}
	if r.term == "" {
		r.term = FullYearTerm(r.year)
	}

	root := strings.TrimSpace(r.req.RootFolderName)
	if root == "" {
		root = r.req.Tenant.RootFolder
	}
	if root == "" {
		return ErrMissingRootFolder
	}

	r.root = root

	path := []folderLevel{{name: root}}
	if !ongoing {
		path = append(path, folderLevel{name: r.year})
	}
	path = append(path,
		folderLevel{name: r.term},
		folderLevel{name: CourseFolderName(r.term, course), search: course.SISCourseID},
	)

	parentID := ""
	for _, level := range path {
		f, err := r.p.host.GetOrCreateFolder(ctx, level.name, parentID, level.search)
		if err != nil {
			return fmt.Errorf("folder %q: %w", level.name, err)
		}
		r.res.FolderIDs = append(r.res.FolderIDs, f.ID)
		parentID = f.ID
		r.folder = f
	}
	r.log.Info("course folder resolved", zap.String("folder_id", r.folder.ID), zap.String("folder", r.folder.Name))
	return nil
}

func (r *run) resolveCatalog(ctx context.Context) error {
	friendly := FriendlyName(r.root, r.term, r.course.CourseCode, r.course.SISCourseID)

	cat, err := r.p.host.GetOrCreateCatalog(ctx, friendly, r.folder.Name, r.folder.ID, r.course.SISCourseID)
	if err != nil {
		return err
	}
	if cat.CatalogURL == "" {
		return fmt.Errorf("%w: catalog %s", ErrMissingCatalogURL, cat.ID)
	}
	r.cat = cat
	r.res.CatalogID = cat.ID
	r.res.CatalogURL = cat.CatalogURL

	settings := r.req.Tenant.Catalog
	if settings.ItemsPerPage <= 0 {
		settings = r.p.opts.CatalogDefaults
	}
	if err := r.p.host.SetCatalogSettings(ctx, cat.ID, settings); err != nil {
		return err
	}

	if r.p.opts.LinkModule {
		m, err := r.p.host.GetOrCreateModule(ctx, r.course.SISCourseID, r.folder.Name, cat.ID)
		if err != nil {
			return err
		}
		if err := r.p.host.AddModuleAssociation(ctx, m.ID, cat.ID); err != nil {
			return err
		}
	}
	r.log.Info("catalog resolved", zap.String("catalog_id", cat.ID), zap.String("catalog_url", cat.CatalogURL))
	return nil
}

type grant struct {
	key   string
	name  string
	entry string
	mask  mediasite.PermissionMask
}

func (r *run) computePermissions(ctx context.Context) error {
	sis := r.course.SISCourseID
	key := r.creds.ConsumerKey
	grants := []grant{
		{"course", sis, CourseDirectoryEntry(sis, key), mediasite.ViewOnly},
		{"instructor", sis + " Instructor", InstructorDirectoryEntry(sis, key), mediasite.ReadWrite},
		{"ta", sis + " Teaching Assistant", TADirectoryEntry(sis, key), mediasite.ReadWrite},
	}

	roles := make([]*mediasite.Role, len(grants))
	for i, g := range grants {
		role, err := r.p.host.GetOrCreateRole(ctx, g.name, g.entry)
		if err != nil {
			return fmt.Errorf("role %q: %w", g.entry, err)
		}
		roles[i] = role
		r.res.Roles[g.key] = role.ID
	}

	perms, err := r.p.host.FolderPermissions(ctx, r.folder.ID)
	if err != nil {
		return err
	}
	for i, g := range grants {
		perms.Update(roles[i].ID, g.mask)
	}

	revoked := []struct{ name, entry string }{
		{"", LearnerDirectoryEntry(key)},
		{AuthenticatedUsersRole, ""},
	}
	for _, rv := range revoked {
		role, err := r.p.host.FindRole(ctx, rv.name, rv.entry)
		if err != nil {
			return fmt.Errorf("revoked role %q: %w", rv.name+rv.entry, err)
		}
		if role == nil {
			r.log.Debug("revoked role not found", zap.String("name", rv.name), zap.String("entry", rv.entry))
			continue
		}
		perms.Update(role.ID, mediasite.NoAccess)
	}

	if r.p.opts.ProvisionUserProfiles {
		if err := r.grantTeachers(ctx, perms); err != nil {
			return err
		}
	}
	r.perms = perms
	return nil
}

// grantTeachers gives every teacher and TA read-write through the personal
// role of their host user profile, creating the profile when missing.
func (r *run) grantTeachers(ctx context.Context, perms *mediasite.FolderPermissions) error {
	enrollments, err := r.p.lms.TeachingEnrollments(ctx, r.course.ID, true)
	if err != nil {
		return err
	}
	seen := map[string]bool{}
	for _, e := range enrollments {
		email := strings.TrimSpace(e.User.Email)
		if email == "" || seen[strings.ToLower(email)] {
			continue
		}
		seen[strings.ToLower(email)] = true

		profile, err := r.p.host.GetOrCreateUser(ctx, mediasite.UserProfile{
			UserName:    email,
			DisplayName: e.User.Name,
			Email:       email,
			Activated:   true,
		})
		if err != nil {
			return fmt.Errorf("user profile %s: %w", email, err)
		}
		roleID, err := mediasite.ProfileRoleID(profile.ID)
		if err != nil {
			return err
		}
		perms.Update(roleID, mediasite.ReadWrite)
	}
	return nil
}

func (r *run) flushPermissions(ctx context.Context) error {
	if err := r.p.host.AssignPermissions(ctx, r.folder.ID, r.perms); err != nil {
		return err
	}
	r.log.Info("folder permissions written", zap.String("folder_id", r.folder.ID), zap.Int("entries", len(r.perms.Permissions)))
	return nil
}

func (r *run) writeLink(ctx context.Context) error {
	link := canvas.ExternalToolLink{
		Name:         r.p.opts.LinkName,
		URL:          r.cat.CatalogURL,
		ConsumerKey:  r.creds.ConsumerKey,
		SharedSecret: r.creds.SharedSecret,
		TermName:     r.term,
	}
	tool, err := r.p.lms.CreateMediasiteAppExternalLink(ctx, r.course.ID, link)
	if err != nil {
		return err
	}
	if r.p.opts.ModuleName != "" {
		if _, err := r.p.lms.GetOrCreateMediasiteModuleItem(ctx, r.course.ID, r.p.opts.ModuleName, tool.Name, r.cat.CatalogURL); err != nil {
			return err
		}
	}
	r.log.Info("course link written", zap.Int64("tool_id", tool.ID), zap.String("name", tool.Name))
	return nil
}
