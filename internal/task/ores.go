package task

import (
	"fmt"
	"image/color"

	"orebot/internal/vision"
)

// Ore is a detector class id for a rock.
type Ore int

const (
	OreAdamant Ore = iota
	OreCoal
	OreCopper
	OreIron
	OreMithril
	OreSilver
	OreTin
	OreDepleted
)

var oreNames = [...]string{"Adamant", "Coal", "Copper", "Iron", "Mithril", "Silver", "Tin", "Depleted"}

var oreColors = [...]color.RGBA{
	{R: 0, G: 128, B: 0, A: 255},
	{R: 54, G: 69, B: 79, A: 255},
	{R: 184, G: 115, B: 51, A: 255},
	{R: 178, G: 34, B: 34, A: 255},
	{R: 70, G: 130, B: 180, A: 255},
	{R: 192, G: 192, B: 192, A: 255},
	{R: 205, G: 205, B: 193, A: 255},
	{R: 0, G: 0, B: 0, A: 255},
}

// String returns the ore name
func (o Ore) String() string {
	if o < 0 || int(o) >= len(oreNames) {
		return fmt.Sprintf("Class %d", int(o))
	}
	return oreNames[o]
}

// Color returns the colour the ore is drawn with. Unknown classes are grey.
func (o Ore) Color() color.RGBA {
	if o < 0 || int(o) >= len(oreColors) {
		return color.RGBA{R: 130, G: 130, B: 130, A: 255}
	}
	return oreColors[o]
}

// ParseOre returns the ore called name.
func ParseOre(name string) (Ore, error) {
	for i, n := range oreNames {
		if n == name {
			return Ore(i), nil
		}
	}
	return 0, fmt.Errorf("unknown ore %q", name)
}

// OreClasses returns detector classes for every ore, matched by the ore's
// drawing colour within tolerance.
func OreClasses(tolerance uint8) []vision.ClassColor {
	out := make([]vision.ClassColor, len(oreNames))
	for i := range oreNames {
		o := Ore(i)
		out[i] = vision.ClassColor{ClassID: i, Name: o.String(), Color: o.Color(), Tolerance: tolerance}
	}
	return out
}

// MineableOres returns every ore except Depleted.
func MineableOres() []Ore {
	out := make([]Ore, 0, len(oreNames)-1)
	for i := range oreNames {
		if o := Ore(i); o != OreDepleted {
			out = append(out, o)
		}
	}
	return out
}
