package extract

import (
	"testing"

	"github.com/lodestone-ai/codegraph/internal/model"
)

func TestCategorize(t *testing.T) {
	cases := []struct {
		in       string
		category model.TypeCategory
		optional bool
		isArray  bool
	}{
		{"int", model.TypePrimitive, false, false},
		{"str", model.TypePrimitive, false, false},
		{"number", model.TypePrimitive, false, false},
		{"UserService", model.TypeClass, false, false},
		{"Dict[str, int]", model.TypeGeneric, false, false},
		{"List[Item]", model.TypeClass, false, true},
		{"Item[]", model.TypeClass, false, true},
		{"[]string", model.TypePrimitive, false, true},
		{"Optional[int]", model.TypePrimitive, true, false},
		{"str | None", model.TypeUnion, true, false},
		{"Union[str, int]", model.TypeUnion, false, false},
		{"Callable[[int], str]", model.TypeFunction, false, false},
		{"func(int) error", model.TypeFunction, false, false},
		{"(x: number) => void", model.TypeFunction, false, false},
		{"Any", model.TypeAny, false, false},
		{"unknown", model.TypeAny, false, false},
		{"interface{}", model.TypeAny, false, false},
		{"*Store", model.TypeClass, true, false},
		{"map[string]int", model.TypeGeneric, false, false},
		{"Promise<Item>", model.TypeGeneric, false, false},
	}
	for _, tc := range cases {
		category, optional, isArray := categorize(tc.in)
		if category != tc.category || optional != tc.optional || isArray != tc.isArray {
			t.Errorf("categorize(%q) = (%s, %v, %v), want (%s, %v, %v)",
				tc.in, category, optional, isArray, tc.category, tc.optional, tc.isArray)
		}
	}
}
