package task

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"

	"github.com/rs/zerolog"

	"orebot/internal/tracking"
	"orebot/internal/vision"
)

// Tab is a detector class id for a side panel tab.
type Tab int

const (
	TabAttackStyle Tab = iota
	TabFriendsList
	TabInventory
	TabMagic
	TabPrayer
	TabQuests
	TabSkills
	TabEquipment
)

var tabNames = [...]string{
	"Attack Style Tab", "Friends List Tab", "Inventory Tab", "Magic Tab",
	"Prayer Tab", "Quests Tab", "Skills Tab", "Equipment Tab",
}

// String returns the tab name, which is also the name of the resource the
// tab's crop is published under.
func (t Tab) String() string {
	if t < 0 || int(t) >= len(tabNames) {
		return fmt.Sprintf("Tab %d", int(t))
	}
	return tabNames[t]
}

// ParseTab returns the tab called name.
func ParseTab(name string) (Tab, error) {
	for i, n := range tabNames {
		if n == name {
			return Tab(i), nil
		}
	}
	return 0, fmt.Errorf("unknown tab %q", name)
}

// FindTabConfig tunes a FindTabTask.
type FindTabConfig struct {
	Tracking Tab
	// DedupThreshold merges near-identical tab detections.
	DedupThreshold float64
	// OverrideClass relabels every detection as Override, for collecting
	// training crops of one tab.
	OverrideClass bool
	Override      Tab
}

// DefaultFindTabConfig tracks the inventory tab.
func DefaultFindTabConfig() FindTabConfig {
	return FindTabConfig{
		Tracking:       TabInventory,
		DedupThreshold: 0.95,
		Override:       TabInventory,
	}
}

// FindTabTask finds the side panel tabs in the main frame and publishes a
// crop of the tracked tab as a resource named after the tab. The resource is
// removed on frames where the tab is not found.
type FindTabTask struct {
	cfg      FindTabConfig
	detector Detector
	res      *Resources
	log      zerolog.Logger

	tabs []tracking.DetectionBox
}

// NewFindTabTask creates a tab finder.
func NewFindTabTask(cfg FindTabConfig, detector Detector, res *Resources, log zerolog.Logger) *FindTabTask {
	return &FindTabTask{
		cfg:      cfg,
		detector: detector,
		res:      res,
		log:      log.With().Str("component", "find_tab").Logger(),
	}
}

// Name implements Task.
func (t *FindTabTask) Name() string { return "Find Tab Task" }

// InputResources implements Task.
func (t *FindTabTask) InputResources() []string { return []string{MainFrame} }

// OutputResources implements Task.
func (t *FindTabTask) OutputResources() []string { return []string{t.cfg.Tracking.String()} }

// Load implements Task.
func (t *FindTabTask) Load() error {
	if t.detector == nil || t.res == nil {
		return fmt.Errorf("find tab task: missing detector or resources")
	}
	return nil
}

// Tabs returns the tabs found in the last frame.
func (t *FindTabTask) Tabs() []tracking.DetectionBox {
	return t.tabs
}

// Run implements Task.
func (t *FindTabTask) Run(dt float64) {
	out := t.cfg.Tracking.String()

	frame, err := Get[*image.RGBA](t.res, MainFrame)
	if err != nil {
		t.res.Remove(out)
		return
	}
	boxes, err := t.detector.Infer(frame)
	if err != nil {
		t.log.Warn().Err(err).Msg("tab detection failed")
		t.res.Remove(out)
		return
	}

	t.tabs = tracking.Dedup(boxes, t.cfg.DedupThreshold)
	if t.cfg.OverrideClass {
		for i := range t.tabs {
			t.tabs[i].ClassID = int(t.cfg.Override)
		}
	}

	for _, tab := range t.tabs {
		if Tab(tab.ClassID) != t.cfg.Tracking {
			continue
		}
		r := tab.Rect().Intersect(frame.Bounds())
		if r.Empty() {
			continue
		}
		t.res.Set(out, crop(frame, r))
		return
	}
	t.res.Remove(out)
}

// Draw implements Task.
func (t *FindTabTask) Draw(dst draw.Image) {
	for _, tab := range t.tabs {
		col := color.RGBA{R: 130, G: 130, B: 130, A: 255}
		if Tab(tab.ClassID) == t.cfg.Tracking {
			col = color.RGBA{R: 255, G: 255, B: 255, A: 255}
		}
		r := tab.Rect()
		vision.DrawRect(dst, r, col, 2)
		vision.DrawLabel(dst, r.Min.Sub(image.Pt(0, 18)), Tab(tab.ClassID).String(), col)
	}
}

// crop copies r out of src into a new image whose bounds start at the origin.
func crop(src *image.RGBA, r image.Rectangle) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), src, r.Min, draw.Src)
	return dst
}

// InventoryTask counts the ores in the inventory tab crop published by a
// FindTabTask.
type InventoryTask struct {
	detector Detector
	res      *Resources
	log      zerolog.Logger

	items  []tracking.DetectionBox
	counts map[Ore]int
}

// NewInventoryTask creates an inventory counter.
func NewInventoryTask(detector Detector, res *Resources, log zerolog.Logger) *InventoryTask {
	return &InventoryTask{
		detector: detector,
		res:      res,
		log:      log.With().Str("component", "inventory").Logger(),
		counts:   make(map[Ore]int),
	}
}

// Name implements Task.
func (t *InventoryTask) Name() string { return "Inventory Task" }

// InputResources implements Task.
func (t *InventoryTask) InputResources() []string { return []string{TabInventory.String()} }

// OutputResources implements Task.
func (t *InventoryTask) OutputResources() []string { return nil }

// Load implements Task.
func (t *InventoryTask) Load() error {
	if t.detector == nil || t.res == nil {
		return fmt.Errorf("inventory task: missing detector or resources")
	}
	return nil
}

// Counts returns how many of each ore the last inventory frame held.
func (t *InventoryTask) Counts() map[Ore]int {
	out := make(map[Ore]int, len(t.counts))
	for k, v := range t.counts {
		out[k] = v
	}
	return out
}

// Run implements Task. Frames without an inventory crop are skipped and the
// previous counts kept.
func (t *InventoryTask) Run(dt float64) {
	tab, err := Get[*image.RGBA](t.res, TabInventory.String())
	if err != nil {
		return
	}
	items, err := t.detector.Infer(tab)
	if err != nil {
		t.log.Warn().Err(err).Msg("inventory detection failed")
		return
	}

	t.items = items
	clear(t.counts)
	for _, it := range items {
		t.counts[Ore(it.ClassID)]++
	}
}

// Draw implements Task. Item boxes are relative to the tab crop, so they are
// listed as text instead of outlined on the main frame.
func (t *InventoryTask) Draw(dst draw.Image) {
	y := dst.Bounds().Min.Y + 30
	for ore := OreAdamant; ore < OreDepleted; ore++ {
		n := t.counts[ore]
		if n == 0 {
			continue
		}
		vision.DrawLabel(dst, image.Pt(dst.Bounds().Min.X+10, y), fmt.Sprintf("%s x%d", ore, n), ore.Color())
		y += 16
	}
}
