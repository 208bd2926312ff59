package mediasite

import (
	"encoding/json"
	"fmt"
	"time"
)

// PermissionMask is the bit set granted to a role on a resource.
type PermissionMask int

const (
	NoAccess  PermissionMask = 0
	ViewOnly  PermissionMask = 4
	ReadOnly  PermissionMask = 5
	ReadWrite PermissionMask = 7
)

func (m PermissionMask) String() string {
	switch m {
	case NoAccess:
		return "no-access"
	case ViewOnly:
		return "view-only"
	case ReadOnly:
		return "read-only"
	case ReadWrite:
		return "read-write"
	default:
		return fmt.Sprintf("mask(%d)", int(m))
	}
}

type Home struct {
	RootFolderID string `json:"RootFolderId"`
	SiteName     string `json:"SiteName"`
	SiteVersion  string `json:"SiteVersion"`
}

func (h Home) validate() error {
	if h.RootFolderID == "" {
		return fmt.Errorf("home: missing RootFolderId")
	}
	return nil
}

type Folder struct {
	ID                         string     `json:"Id"`
	Name                       string     `json:"Name"`
	Owner                      string     `json:"Owner"`
	Description                string     `json:"Description"`
	CreationDate               *time.Time `json:"CreationDate"`
	LastModified               *time.Time `json:"LastModified"`
	ParentFolderID             string     `json:"ParentFolderId"`
	Recycled                   bool       `json:"Recycled"`
	Type                       string     `json:"Type"`
	IsShared                   bool       `json:"IsShared"`
	IsCopyDestination          bool       `json:"IsCopyDestination"`
	IsReviewEditApproveEnabled bool       `json:"IsReviewEditApproveEnabled"`
}

func (f Folder) validate() error {
	if f.ID == "" || f.Name == "" {
		return fmt.Errorf("folder: missing Id or Name")
	}
	return nil
}

// NewFolder describes a folder to create.
type NewFolder struct {
	Name              string
	ParentFolderID    string
	IsCopyDestination bool
	IsShared          bool
}

type Catalog struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	FriendlyName   string `json:"FriendlyName"`
	LinkedFolderID string `json:"LinkedFolderId"`
	CatalogURL     string `json:"CatalogUrl"`
}

func (c Catalog) validate() error {
	if c.ID == "" || c.LinkedFolderID == "" {
		return fmt.Errorf("catalog: missing Id or LinkedFolderId")
	}
	return nil
}

// CatalogSettings is the display subset of a catalog's settings that we manage.
type CatalogSettings struct {
	ShowDate     bool
	ShowTime     bool
	ItemsPerPage int
}

func (s CatalogSettings) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		ShowTablePresentationDate bool `json:"ShowTablePresentationDate"`
		ShowTablePresentationTime bool `json:"ShowTablePresentationTime"`
		ShowCardPresentationDate  bool `json:"ShowCardPresentationDate"`
		ShowCardPresentationTime  bool `json:"ShowCardPresentationTime"`
		PresentationsPerPage      int  `json:"PresentationsPerPage"`
		AllowLoginControls        bool `json:"AllowLoginControls"`
	}{
		ShowTablePresentationDate: s.ShowDate,
		ShowTablePresentationTime: s.ShowTime,
		ShowCardPresentationDate:  s.ShowDate,
		ShowCardPresentationTime:  s.ShowTime,
		PresentationsPerPage:      s.ItemsPerPage,
	})
}

type Module struct {
	ID           string   `json:"Id"`
	ModuleID     string   `json:"ModuleId"`
	Name         string   `json:"Name"`
	Associations []string `json:"Associations"`
}

func (m Module) validate() error {
	if m.ID == "" || m.ModuleID == "" {
		return fmt.Errorf("module: missing Id or ModuleId")
	}
	return nil
}

type Role struct {
	ID             string `json:"Id"`
	Name           string `json:"Name"`
	Description    string `json:"Description"`
	DirectoryEntry string `json:"DirectoryEntry"`
}

func (r Role) validate() error {
	if r.ID == "" {
		return fmt.Errorf("role: missing Id")
	}
	return nil
}

type AccessControl struct {
	RoleID         string         `json:"RoleId"`
	PermissionMask PermissionMask `json:"PermissionMask"`
}

type ResourcePermission struct {
	ID                 string          `json:"Id"`
	Owner              string          `json:"Owner"`
	InheritPermissions bool            `json:"InheritPermissions"`
	AccessControlList  []AccessControl `json:"AccessControlList"`
}

func (p ResourcePermission) validate() error {
	for _, ac := range p.AccessControlList {
		if ac.RoleID == "" {
			return fmt.Errorf("resource permission %s: access control without RoleId", p.ID)
		}
	}
	return nil
}

// FolderPermissions is the working set written back by AssignPermissions.
// It holds at most one entry per role.
type FolderPermissions struct {
	Owner       string          `json:"Owner"`
	Permissions []AccessControl `json:"Permissions"`
}

// Update sets role's mask. A NoAccess mask removes the role's entry rather
// than storing a zero entry.
func (p *FolderPermissions) Update(roleID string, mask PermissionMask) {
	for i := range p.Permissions {
		if p.Permissions[i].RoleID != roleID {
			continue
		}
		if mask == NoAccess {
			p.Permissions = append(p.Permissions[:i:i], p.Permissions[i+1:]...)
		} else {
			p.Permissions[i].PermissionMask = mask
		}
		return
	}
	if mask != NoAccess {
		p.Permissions = append(p.Permissions, AccessControl{RoleID: roleID, PermissionMask: mask})
	}
}

// Mask returns the mask held by roleID, NoAccess when absent.
func (p *FolderPermissions) Mask(roleID string) PermissionMask {
	for _, ac := range p.Permissions {
		if ac.RoleID == roleID {
			return ac.PermissionMask
		}
	}
	return NoAccess
}

type UserProfile struct {
	ID          string `json:"Id,omitempty"`
	UserName    string `json:"UserName"`
	DisplayName string `json:"DisplayName"`
	Email       string `json:"Email"`
	Activated   bool   `json:"Activated"`
	TimeZone    int    `json:"TimeZone"`
}

func (u UserProfile) validate() error {
	if u.ID == "" || u.UserName == "" {
		return fmt.Errorf("user profile: missing Id or UserName")
	}
	return nil
}

// envelope is the OData list wrapper.
type envelope[T any] struct {
	Value []T    `json:"value"`
	Count string `json:"odata.count"`
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

// decodeMany decodes a list envelope. Filter results are an untrusted
// superset of what was asked for, so entries that fail validation are
// dropped and counted rather than failing the whole list.
func decodeMany[T validatable](b []byte) ([]T, string, int, error) {
	var env envelope[T]
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, "", 0, err
	}
	out := env.Value[:0]
	skipped := 0
	for _, v := range env.Value {
		if v.validate() != nil {
			skipped++
			continue
		}
		out = append(out, v)
	}
	return out, env.Count, skipped, nil
}
