package templates

import (
	"encoding/json"
	"strconv"

	"github.com/aouyang1/portfoliogallery/util"
)

func imageName(ref string) string {
	return util.BaseName(ref)
}

// deleteVals is the hx-vals payload for a confirmed delete of ref
func deleteVals(ref string) string {
	b, _ := json.Marshal(map[string]string{"ref": ref, "confirmed": "true"})
	return string(b)
}

func playVals(ref string) string {
	b, _ := json.Marshal(map[string]string{"ref": ref})
	return string(b)
}

func intervalValue(ms int64) string {
	return strconv.FormatInt(ms, 10)
}
