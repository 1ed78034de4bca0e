package aruco

import (
	"fmt"
	"sort"
	"strings"

	"gocv.io/x/gocv"
)

// DefaultDictionary is the dictionary used when none is configured.
const DefaultDictionary = "4x4_250"

var dictionaries = map[string]gocv.ArucoDictionaryCode{
	"4x4_50":         gocv.ArucoDict4x4_50,
	"4x4_100":        gocv.ArucoDict4x4_100,
	"4x4_250":        gocv.ArucoDict4x4_250,
	"4x4_1000":       gocv.ArucoDict4x4_1000,
	"5x5_50":         gocv.ArucoDict5x5_50,
	"5x5_100":        gocv.ArucoDict5x5_100,
	"5x5_250":        gocv.ArucoDict5x5_250,
	"5x5_1000":       gocv.ArucoDict5x5_1000,
	"6x6_50":         gocv.ArucoDict6x6_50,
	"6x6_100":        gocv.ArucoDict6x6_100,
	"6x6_250":        gocv.ArucoDict6x6_250,
	"6x6_1000":       gocv.ArucoDict6x6_1000,
	"7x7_50":         gocv.ArucoDict7x7_50,
	"7x7_100":        gocv.ArucoDict7x7_100,
	"7x7_250":        gocv.ArucoDict7x7_250,
	"7x7_1000":       gocv.ArucoDict7x7_1000,
	"aruco_original": gocv.ArucoDictArucoOriginal,
	"apriltag_16h5":  gocv.ArucoDictAprilTag_16h5,
	"apriltag_25h9":  gocv.ArucoDictAprilTag_25h9,
	"apriltag_36h10": gocv.ArucoDictAprilTag_36h10,
	"apriltag_36h11": gocv.ArucoDictAprilTag_36h11,
}

// ParseDictionary resolves a dictionary name such as "4x4_250" or
// "DICT_4X4_250" to the OpenCV predefined dictionary.
func ParseDictionary(name string) (gocv.ArucoDictionaryCode, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	key = strings.TrimPrefix(key, "dict_")
	if key == "" {
		key = DefaultDictionary
	}

	dict, ok := dictionaries[key]
	if !ok {
		return 0, fmt.Errorf("%w: %q (known: %s)", ErrUnknownDictionary, name, strings.Join(Dictionaries(), ", "))
	}
	return dict, nil
}

// Dictionaries returns the supported dictionary names, sorted.
func Dictionaries() []string {
	names := make([]string, 0, len(dictionaries))
	for name := range dictionaries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
