package parser

// field enumerates how a property value is extracted. Every key in a table
// maps to exactly one field, so the dispatch in taskParser.property is an
// exhaustive switch over this alphabet.
type field uint8

const (
	fieldPlain field = iota
	fieldNext
	fieldAnchor
	fieldWaitFreezes
	fieldRecognition
	fieldRoi
	fieldTemplate
	fieldComposite
	fieldSubName
	fieldLocalizable
	fieldAction
	fieldTaskRef
	fieldTaskRefs
	fieldSwipes
	fieldBaseTask
)

type keySpec struct {
	bucket Bucket
	field  field
}

type keyTable map[string]keySpec

func table(bucket Bucket, fields map[string]field) keyTable {
	t := make(keyTable, len(fields))
	for k, f := range fields {
		t[k] = keySpec{bucket: bucket, field: f}
	}
	return t
}

func merge(tables ...keyTable) keyTable {
	out := keyTable{}
	for _, t := range tables {
		for k, v := range t {
			out[k] = v
		}
	}
	return out
}

var frameworkKeys = merge(
	table(BucketBase, map[string]field{
		"next":                fieldNext,
		"on_error":            fieldNext,
		"timeout_next":        fieldNext,
		"runout_next":         fieldNext,
		"interrupt":           fieldNext,
		"anchor":              fieldAnchor,
		"pre_wait_freezes":    fieldWaitFreezes,
		"post_wait_freezes":   fieldWaitFreezes,
		"repeat_wait_freezes": fieldWaitFreezes,
		"focus":               fieldLocalizable,
		"is_sub":              fieldPlain,
		"inverse":             fieldPlain,
		"enabled":             fieldPlain,
		"max_hit":             fieldPlain,
		"timeout":             fieldPlain,
		"rate_limit":          fieldPlain,
		"pre_delay":           fieldPlain,
		"post_delay":          fieldPlain,
		"repeat":              fieldPlain,
		"repeat_delay":        fieldPlain,
		"attach":              fieldPlain,
		"doc":                 fieldPlain,
	}),
	table(BucketRecognition, map[string]field{
		"recognition":              fieldRecognition,
		"roi":                      fieldRoi,
		"template":                 fieldTemplate,
		"all_of":                   fieldComposite,
		"any_of":                   fieldComposite,
		"sub_name":                 fieldSubName,
		"expected":                 fieldLocalizable,
		"roi_offset":               fieldPlain,
		"threshold":                fieldPlain,
		"order_by":                 fieldPlain,
		"index":                    fieldPlain,
		"method":                   fieldPlain,
		"green_mask":               fieldPlain,
		"count":                    fieldPlain,
		"detector":                 fieldPlain,
		"ratio":                    fieldPlain,
		"lower":                    fieldPlain,
		"upper":                    fieldPlain,
		"connected":                fieldPlain,
		"replace":                  fieldPlain,
		"only_rec":                 fieldPlain,
		"model":                    fieldPlain,
		"labels":                   fieldPlain,
		"box_index":                fieldPlain,
		"custom_recognition":       fieldPlain,
		"custom_recognition_param": fieldPlain,
	}),
	table(BucketAction, map[string]field{
		"action":              fieldAction,
		"target":              fieldTaskRef,
		"begin":               fieldTaskRef,
		"end":                 fieldTaskRefs,
		"swipes":              fieldSwipes,
		"target_offset":       fieldPlain,
		"begin_offset":        fieldPlain,
		"end_offset":          fieldPlain,
		"duration":            fieldPlain,
		"end_hold":            fieldPlain,
		"only_hover":          fieldPlain,
		"starting":            fieldPlain,
		"key":                 fieldPlain,
		"input_text":          fieldPlain,
		"package":             fieldPlain,
		"custom_action":       fieldPlain,
		"custom_action_param": fieldPlain,
		"exec":                fieldPlain,
		"args":                fieldPlain,
		"detach":              fieldPlain,
		"contact":             fieldPlain,
		"pressure":            fieldPlain,
		"dx":                  fieldPlain,
		"dy":                  fieldPlain,
	}),
)

var legacyKeys = merge(
	table(BucketBase, map[string]field{
		"baseTask":         fieldBaseTask,
		"next":             fieldNext,
		"sub":              fieldNext,
		"onErrorNext":      fieldNext,
		"exceededNext":     fieldNext,
		"reduceOtherTimes": fieldNext,
		"subErrorIgnored":  fieldPlain,
		"maxTimes":         fieldPlain,
		"preDelay":         fieldPlain,
		"postDelay":        fieldPlain,
		"cache":            fieldPlain,
		"rectMove":         fieldPlain,
		"specialParams":    fieldPlain,
		"Doc":              fieldPlain,
	}),
	table(BucketRecognition, map[string]field{
		"algorithm":      fieldPlain,
		"template":       fieldTemplate,
		"roi":            fieldPlain,
		"text":           fieldLocalizable,
		"templThreshold": fieldPlain,
		"maskRange":      fieldPlain,
		"colorScales":    fieldPlain,
		"colorWithClose": fieldPlain,
		"method":         fieldPlain,
		"fullMatch":      fieldPlain,
		"isAscii":        fieldPlain,
		"withoutDet":     fieldPlain,
		"ocrReplace":     fieldPlain,
		"replaceFull":    fieldPlain,
	}),
	table(BucketAction, map[string]field{
		"action":       fieldPlain,
		"specificRect": fieldPlain,
		"inputText":    fieldPlain,
	}),
)

// keysFor returns the key table for a dialect.
func keysFor(d Dialect) keyTable {
	if d == DialectLegacy {
		return legacyKeys
	}
	return frameworkKeys
}

const (
	prefixJumpBack = "[JumpBack]"
	prefixAnchor   = "[Anchor]"
)
