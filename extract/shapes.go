package extract

import "github.com/use-agent/siteprobe/models"

// shapesByKind lists which record shapes each request kind can produce.
var shapesByKind = map[models.RequestKind][]models.ShapeName{
	models.KindWebsite: {
		models.ShapeWebsite,
		models.ShapeBusiness,
		models.ShapeTechnology,
		models.ShapeSEO,
		models.ShapePerformance,
		models.ShapeContent,
		models.ShapeStructure,
	},
	models.KindChannel: {
		models.ShapeChannel,
	},
}

// Supports reports whether kind can produce shape.
func Supports(kind models.RequestKind, shape models.ShapeName) bool {
	for _, s := range shapesByKind[kind] {
		if s == shape {
			return true
		}
	}
	return false
}

func (p *Pipeline) fieldsFor(shape models.ShapeName, opts models.Options) []field {
	switch shape {
	case models.ShapeBusiness:
		return businessFields
	case models.ShapeTechnology:
		return technologyFields
	case models.ShapeSEO:
		return seoFields(opts)
	case models.ShapePerformance:
		return performanceFields
	case models.ShapeContent:
		return contentFields
	case models.ShapeStructure:
		return structureFields
	case models.ShapeChannel:
		return channelFields
	case models.ShapeWebsite:
		return union(businessFields, technologyFields, seoFields(opts), performanceFields, contentFields, structureFields)
	default:
		return nil
	}
}

// union concatenates field sets, keeping the first definition of a name.
func union(sets ...[]field) []field {
	seen := map[string]struct{}{}
	var out []field
	for _, set := range sets {
		for _, f := range set {
			if _, dup := seen[f.name]; dup {
				continue
			}
			seen[f.name] = struct{}{}
			out = append(out, f)
		}
	}
	return out
}
