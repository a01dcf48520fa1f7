package scene

// Material tags a surface for penetration math and impact classification.
type Material string

const (
	MaterialConcrete Material = "concrete"
	MaterialMetal    Material = "metal"
	MaterialWood     Material = "wood"
	MaterialGlass    Material = "glass"
	MaterialDrywall  Material = "drywall"
	MaterialFlesh    Material = "flesh"
)

// materialFactors scales a weapon's penetration power per material.
// Higher means easier to shoot through.
var materialFactors = map[Material]float64{
	MaterialConcrete: 0.5,
	MaterialMetal:    0.25,
	MaterialWood:     1.5,
	MaterialGlass:    3.0,
	MaterialDrywall:  2.0,
	MaterialFlesh:    1.0,
}

// Factor returns the penetration factor for the material.
// Unknown materials behave like a neutral 1.0 surface.
func (m Material) Factor() float64 {
	if f, ok := materialFactors[m]; ok {
		return f
	}
	return 1.0
}

// BodyPart identifies the region of a living volume that was struck.
type BodyPart string

const (
	PartNone  BodyPart = ""
	PartHead  BodyPart = "head"
	PartTorso BodyPart = "torso"
	PartLimbs BodyPart = "limbs"
)
