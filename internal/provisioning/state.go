package provisioning

// State is the progress of one provisioning run.
type State int

const (
	Start State = iota
	FolderResolved
	CatalogResolved
	PermissionsComputed
	PermissionsFlushed
	LinkWritten
	Done
	Failed
)

func (s State) String() string {
	switch s {
	case Start:
		return "START"
	case FolderResolved:
		return "FOLDER_RESOLVED"
	case CatalogResolved:
		return "CATALOG_RESOLVED"
	case PermissionsComputed:
		return "PERMISSIONS_COMPUTED"
	case PermissionsFlushed:
		return "PERMISSIONS_FLUSHED"
	case LinkWritten:
		return "LINK_WRITTEN"
	case Done:
		return "DONE"
	case Failed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
