package storageproc

// procContext threads through one co-walk of a value tree against an RA:
// which table a fresh row belongs to, that row's own id, and the parent
// row's id to foreign-key against (nil only at a tree's root).
type procContext struct {
	LastTable string
	ID        int64
	FKID      *int64
}

func rootContext(table string, id int64) procContext {
	return procContext{LastTable: table, ID: id}
}
