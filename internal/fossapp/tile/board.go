package tile

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrItemNotFound = errors.New("product is not on the board")
	ErrTileNotFound = errors.New("tile not found")
	ErrDuplicate    = errors.New("product is already on the board")
	ErrInvalidMove  = errors.New("invalid move")
	ErrInvalidItem  = errors.New("invalid item")
)

// Drop targets that are containers rather than items
const (
	DropBucket  = "bucket"
	DropCanvas  = "canvas"
	DropNewTile = "new-tile"
)

// Operation names reported in MoveResult
const (
	OpAddToBucket      = "add_to_bucket"
	OpRemoveFromBucket = "remove_from_bucket"
	OpBucketToCanvas   = "bucket_to_canvas"
	OpBucketToNewTile  = "bucket_to_new_tile"
	OpBucketToTile     = "bucket_to_tile"
	OpCanvasToCanvas   = "canvas_to_canvas"
	OpCanvasToTile     = "canvas_to_tile"
	OpCanvasToBucket   = "canvas_to_bucket"
	OpReorderInTile    = "reorder_in_tile"
	OpRemoveFromTile   = "remove_from_tile"
	OpRenameTile       = "rename_tile"
	OpDeleteTile       = "delete_tile"
	OpClear            = "clear"
	OpNone             = "none"
)

// Item catalog product placed on the board
type Item struct {
	ProductID   string `json:"product_id"`
	FossPID     string `json:"foss_pid"`
	Description string `json:"description"`
	Family      string `json:"family,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Group a tile: ordered products rendered into one drawing
type Group struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Members   []Item    `json:"members"`
	CreatedAt time.Time `json:"created_at"`
}

// Board per-user tile composer state. A product id lives in at most one
// of the bucket, the canvas, or a single group.
type Board struct {
	BucketItems []Item    `json:"bucket_items"`
	CanvasItems []Item    `json:"canvas_items"`
	TileGroups  []Group   `json:"tile_groups"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MoveResult outcome of one board operation
type MoveResult struct {
	Op        string `json:"op"`
	ProductID string `json:"product_id,omitempty"`
	GroupID   string `json:"group_id,omitempty"`
	Changed   bool   `json:"changed"`
}

// NewBoard empty board
func NewBoard() *Board {
	return &Board{
		BucketItems: []Item{},
		CanvasItems: []Item{},
		TileGroups:  []Group{},
	}
}

// newGroupID group ids never contain ':' so member ids stay parseable
var newGroupID = func() string {
	return "tile-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

var now = time.Now

// MemberID drag id of a product inside a group
func MemberID(groupID, productID string) string {
	return groupID + ":" + productID
}

// ParseDragID splits a drag id. Loose items return an empty groupID.
func ParseDragID(id string) (groupID, productID string) {
	if i := strings.IndexByte(id, ':'); i >= 0 {
		return id[:i], id[i+1:]
	}
	return "", id
}

type locKind int

const (
	locNone locKind = iota
	locBucket
	locCanvas
	locGroup
)

type location struct {
	kind  locKind
	group int // index into TileGroups when kind == locGroup
	index int
}

func (b *Board) locate(productID string) location {
	for i, it := range b.BucketItems {
		if it.ProductID == productID {
			return location{kind: locBucket, index: i}
		}
	}
	for i, it := range b.CanvasItems {
		if it.ProductID == productID {
			return location{kind: locCanvas, index: i}
		}
	}
	for g := range b.TileGroups {
		for i, it := range b.TileGroups[g].Members {
			if it.ProductID == productID {
				return location{kind: locGroup, group: g, index: i}
			}
		}
	}
	return location{kind: locNone}
}

func (b *Board) groupIndex(groupID string) int {
	for i := range b.TileGroups {
		if b.TileGroups[i].ID == groupID {
			return i
		}
	}
	return -1
}

// Group returns a copy of the group
func (b *Board) Group(groupID string) (Group, bool) {
	i := b.groupIndex(groupID)
	if i < 0 {
		return Group{}, false
	}
	g := b.TileGroups[i]
	g.Members = append([]Item(nil), g.Members...)
	return g, true
}

// Validate checks the single-location invariant and group ids
func (b *Board) Validate() error {
	seen := make(map[string]string)
	check := func(it Item, where string) error {
		if it.ProductID == "" {
			return fmt.Errorf("%w: empty product id in %s", ErrInvalidItem, where)
		}
		if prev, ok := seen[it.ProductID]; ok {
			return fmt.Errorf("%w: %s in %s and %s", ErrDuplicate, it.ProductID, prev, where)
		}
		seen[it.ProductID] = where
		return nil
	}
	for _, it := range b.BucketItems {
		if err := check(it, DropBucket); err != nil {
			return err
		}
	}
	for _, it := range b.CanvasItems {
		if err := check(it, DropCanvas); err != nil {
			return err
		}
	}
	groups := make(map[string]bool)
	for _, g := range b.TileGroups {
		if g.ID == "" || strings.Contains(g.ID, ":") || groups[g.ID] {
			return fmt.Errorf("%w: bad group id %q", ErrInvalidItem, g.ID)
		}
		groups[g.ID] = true
		for _, it := range g.Members {
			if err := check(it, g.ID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (b *Board) touch() {
	b.UpdatedAt = now()
}

func removeAt(items []Item, i int) ([]Item, Item) {
	it := items[i]
	out := make([]Item, 0, len(items)-1)
	out = append(out, items[:i]...)
	out = append(out, items[i+1:]...)
	return out, it
}

// takeFrom detaches the item at loc. Groups left empty are dropped.
func (b *Board) takeFrom(loc location) Item {
	var it Item
	switch loc.kind {
	case locBucket:
		b.BucketItems, it = removeAt(b.BucketItems, loc.index)
	case locCanvas:
		b.CanvasItems, it = removeAt(b.CanvasItems, loc.index)
	case locGroup:
		g := &b.TileGroups[loc.group]
		g.Members, it = removeAt(g.Members, loc.index)
		if len(g.Members) == 0 {
			b.TileGroups = append(b.TileGroups[:loc.group], b.TileGroups[loc.group+1:]...)
		}
	}
	return it
}

func (b *Board) mustBeIn(productID string, kind locKind) (location, error) {
	loc := b.locate(productID)
	if loc.kind != kind {
		if loc.kind == locNone {
			return loc, fmt.Errorf("%w: %s", ErrItemNotFound, productID)
		}
		return loc, fmt.Errorf("%w: %s is not where the move expects it", ErrInvalidMove, productID)
	}
	return loc, nil
}

func (b *Board) defaultName() string {
	return fmt.Sprintf("Tile %d", len(b.TileGroups)+1)
}

func (b *Board) newGroup(name string, members ...Item) *Group {
	if strings.TrimSpace(name) == "" {
		name = b.defaultName()
	}
	b.TileGroups = append(b.TileGroups, Group{
		ID:        newGroupID(),
		Name:      strings.TrimSpace(name),
		Members:   members,
		CreatedAt: now(),
	})
	return &b.TileGroups[len(b.TileGroups)-1]
}

// ============================================================
// Bucket
// ============================================================

// AddToBucket puts a product in the bucket
func (b *Board) AddToBucket(item Item) (MoveResult, error) {
	if item.ProductID == "" || strings.Contains(item.ProductID, ":") {
		return MoveResult{}, fmt.Errorf("%w: product id %q", ErrInvalidItem, item.ProductID)
	}
	if b.locate(item.ProductID).kind != locNone {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrDuplicate, item.ProductID)
	}
	b.BucketItems = append(b.BucketItems, item)
	b.touch()
	return MoveResult{Op: OpAddToBucket, ProductID: item.ProductID, Changed: true}, nil
}

func (b *Board) RemoveFromBucket(productID string) (MoveResult, error) {
	loc, err := b.mustBeIn(productID, locBucket)
	if err != nil {
		return MoveResult{}, err
	}
	b.takeFrom(loc)
	b.touch()
	return MoveResult{Op: OpRemoveFromBucket, ProductID: productID, Changed: true}, nil
}

func (b *Board) BucketToCanvas(productID string) (MoveResult, error) {
	loc, err := b.mustBeIn(productID, locBucket)
	if err != nil {
		return MoveResult{}, err
	}
	b.CanvasItems = append(b.CanvasItems, b.takeFrom(loc))
	b.touch()
	return MoveResult{Op: OpBucketToCanvas, ProductID: productID, Changed: true}, nil
}

// BucketToNewTile starts a one-member tile. An empty name gets "Tile N".
func (b *Board) BucketToNewTile(productID, name string) (MoveResult, error) {
	loc, err := b.mustBeIn(productID, locBucket)
	if err != nil {
		return MoveResult{}, err
	}
	g := b.newGroup(name, b.takeFrom(loc))
	b.touch()
	return MoveResult{Op: OpBucketToNewTile, ProductID: productID, GroupID: g.ID, Changed: true}, nil
}

func (b *Board) BucketToTile(productID, groupID string) (MoveResult, error) {
	gi := b.groupIndex(groupID)
	if gi < 0 {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrTileNotFound, groupID)
	}
	loc, err := b.mustBeIn(productID, locBucket)
	if err != nil {
		return MoveResult{}, err
	}
	it := b.takeFrom(loc)
	// bucket removal never shifts groups
	b.TileGroups[gi].Members = append(b.TileGroups[gi].Members, it)
	b.touch()
	return MoveResult{Op: OpBucketToTile, ProductID: productID, GroupID: groupID, Changed: true}, nil
}

// ============================================================
// Canvas
// ============================================================

// CanvasToCanvas merges two loose canvas items into a new tile; the
// drop target comes first.
func (b *Board) CanvasToCanvas(activeID, overID, name string) (MoveResult, error) {
	if activeID == overID {
		return MoveResult{}, fmt.Errorf("%w: cannot merge %s with itself", ErrInvalidMove, activeID)
	}
	if _, err := b.mustBeIn(activeID, locCanvas); err != nil {
		return MoveResult{}, err
	}
	if _, err := b.mustBeIn(overID, locCanvas); err != nil {
		return MoveResult{}, err
	}
	over := b.takeFrom(b.locate(overID))
	active := b.takeFrom(b.locate(activeID))
	g := b.newGroup(name, over, active)
	b.touch()
	return MoveResult{Op: OpCanvasToCanvas, ProductID: activeID, GroupID: g.ID, Changed: true}, nil
}

func (b *Board) CanvasToTile(productID, groupID string) (MoveResult, error) {
	gi := b.groupIndex(groupID)
	if gi < 0 {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrTileNotFound, groupID)
	}
	loc, err := b.mustBeIn(productID, locCanvas)
	if err != nil {
		return MoveResult{}, err
	}
	it := b.takeFrom(loc)
	b.TileGroups[gi].Members = append(b.TileGroups[gi].Members, it)
	b.touch()
	return MoveResult{Op: OpCanvasToTile, ProductID: productID, GroupID: groupID, Changed: true}, nil
}

func (b *Board) CanvasToBucket(productID string) (MoveResult, error) {
	loc, err := b.mustBeIn(productID, locCanvas)
	if err != nil {
		return MoveResult{}, err
	}
	b.BucketItems = append(b.BucketItems, b.takeFrom(loc))
	b.touch()
	return MoveResult{Op: OpCanvasToBucket, ProductID: productID, Changed: true}, nil
}

// ============================================================
// Tiles
// ============================================================

// ReorderInTile moves productID to the position currently held by overID
func (b *Board) ReorderInTile(groupID, productID, overID string) (MoveResult, error) {
	gi := b.groupIndex(groupID)
	if gi < 0 {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrTileNotFound, groupID)
	}
	members := b.TileGroups[gi].Members
	from, to := -1, -1
	for i, it := range members {
		switch it.ProductID {
		case productID:
			from = i
		case overID:
			to = i
		}
	}
	if from < 0 {
		return MoveResult{}, fmt.Errorf("%w: %s not in %s", ErrItemNotFound, productID, groupID)
	}
	if productID == overID {
		return MoveResult{Op: OpNone, ProductID: productID, GroupID: groupID}, nil
	}
	if to < 0 {
		return MoveResult{}, fmt.Errorf("%w: %s not in %s", ErrItemNotFound, overID, groupID)
	}

	rest, it := removeAt(members, from)
	reordered := make([]Item, 0, len(members))
	reordered = append(reordered, rest[:to]...)
	reordered = append(reordered, it)
	reordered = append(reordered, rest[to:]...)
	b.TileGroups[gi].Members = reordered
	b.touch()
	return MoveResult{Op: OpReorderInTile, ProductID: productID, GroupID: groupID, Changed: true}, nil
}

// RemoveFromTile sends a member back to the bucket
func (b *Board) RemoveFromTile(groupID, productID string) (MoveResult, error) {
	gi := b.groupIndex(groupID)
	if gi < 0 {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrTileNotFound, groupID)
	}
	loc := b.locate(productID)
	if loc.kind != locGroup || loc.group != gi {
		return MoveResult{}, fmt.Errorf("%w: %s not in %s", ErrItemNotFound, productID, groupID)
	}
	b.BucketItems = append(b.BucketItems, b.takeFrom(loc))
	b.touch()
	return MoveResult{Op: OpRemoveFromTile, ProductID: productID, GroupID: groupID, Changed: true}, nil
}

func (b *Board) RenameTile(groupID, name string) (MoveResult, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return MoveResult{}, fmt.Errorf("%w: tile name is required", ErrInvalidMove)
	}
	gi := b.groupIndex(groupID)
	if gi < 0 {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrTileNotFound, groupID)
	}
	b.TileGroups[gi].Name = name
	b.touch()
	return MoveResult{Op: OpRenameTile, GroupID: groupID, Changed: true}, nil
}

// DeleteTile dissolves a tile, its members go back to the bucket
func (b *Board) DeleteTile(groupID string) (MoveResult, error) {
	gi := b.groupIndex(groupID)
	if gi < 0 {
		return MoveResult{}, fmt.Errorf("%w: %s", ErrTileNotFound, groupID)
	}
	b.BucketItems = append(b.BucketItems, b.TileGroups[gi].Members...)
	b.TileGroups = append(b.TileGroups[:gi], b.TileGroups[gi+1:]...)
	b.touch()
	return MoveResult{Op: OpDeleteTile, GroupID: groupID, Changed: true}, nil
}

func (b *Board) Clear() MoveResult {
	changed := len(b.BucketItems)+len(b.CanvasItems)+len(b.TileGroups) > 0
	b.BucketItems = []Item{}
	b.CanvasItems = []Item{}
	b.TileGroups = []Group{}
	b.touch()
	return MoveResult{Op: OpClear, Changed: changed}
}

// ============================================================
// Drag and drop
// ============================================================

// Move resolves a drag of activeID dropped on overID. Ids are product ids
// for loose items, MemberID values for grouped ones, group ids for tiles
// and the Drop* constants for containers.
func (b *Board) Move(activeID, overID string) (MoveResult, error) {
	if activeID == "" || overID == "" {
		return MoveResult{}, fmt.Errorf("%w: empty drag id", ErrInvalidMove)
	}

	activeGroup, activeProduct := ParseDragID(activeID)
	if activeGroup != "" {
		overGroup, overProduct := ParseDragID(overID)
		switch {
		case overGroup == activeGroup:
			return b.ReorderInTile(activeGroup, activeProduct, overProduct)
		case overID == DropBucket:
			return b.RemoveFromTile(activeGroup, activeProduct)
		}
		return MoveResult{}, fmt.Errorf("%w: %s onto %s", ErrInvalidMove, activeID, overID)
	}

	targetGroup := b.targetGroup(overID)
	switch b.locate(activeProduct).kind {
	case locBucket:
		switch {
		case overID == DropBucket:
			return MoveResult{Op: OpNone, ProductID: activeProduct}, nil
		case overID == DropCanvas:
			return b.BucketToCanvas(activeProduct)
		case overID == DropNewTile:
			return b.BucketToNewTile(activeProduct, "")
		case targetGroup != "":
			return b.BucketToTile(activeProduct, targetGroup)
		}
	case locCanvas:
		switch {
		case overID == DropCanvas || overID == activeProduct:
			return MoveResult{Op: OpNone, ProductID: activeProduct}, nil
		case overID == DropBucket:
			return b.CanvasToBucket(activeProduct)
		case targetGroup != "":
			return b.CanvasToTile(activeProduct, targetGroup)
		case b.locate(overID).kind == locCanvas:
			return b.CanvasToCanvas(activeProduct, overID, "")
		}
	case locNone:
		return MoveResult{}, fmt.Errorf("%w: %s", ErrItemNotFound, activeProduct)
	}
	return MoveResult{}, fmt.Errorf("%w: %s onto %s", ErrInvalidMove, activeID, overID)
}

// targetGroup group addressed by a drop id: the group itself or one of
// its members
func (b *Board) targetGroup(overID string) string {
	if b.groupIndex(overID) >= 0 {
		return overID
	}
	if g, _ := ParseDragID(overID); g != "" && b.groupIndex(g) >= 0 {
		return g
	}
	return ""
}
