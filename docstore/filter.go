package docstore

import (
	"github.com/bytedance/sonic"
)

// normalize round-trips v through JSON so values compare the way stored
// documents decode (numbers become float64).
func normalize(v interface{}) (map[string]interface{}, error) {
	b, err := sonic.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if err := sonic.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// matchesFilter returns true if all key-value pairs in filterMap match those in docMap.
func matchesFilter(docMap, filterMap map[string]interface{}) bool {
	for k, v := range filterMap {
		if docMap[k] != v {
			return false
		}
	}
	return true
}

func applyUpdate(docMap, updateMap map[string]interface{}) {
	for k, v := range updateMap {
		docMap[k] = v
	}
}
