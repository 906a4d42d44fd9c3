package etl

// CategoryMap is the bidirectional mapping between the values of one column and
// their codes. Codes are dense and start at 0.
type CategoryMap struct {
	NameToIndex map[string]int
	IndexToName map[int]string
}

func NewCategoryMap() CategoryMap {
	return CategoryMap{
		NameToIndex: map[string]int{},
		IndexToName: map[int]string{},
	}
}

// Set assigns index to name in both directions.
func (f CategoryMap) Set(name string, index int) {
	f.NameToIndex[name] = index
	f.IndexToName[index] = name
}

func (f CategoryMap) Size() int {
	return len(f.IndexToName)
}

// Code returns the code of name, or false when name was not seen at fit time.
func (f CategoryMap) Code(name string) (int, bool) {
	index, ok := f.NameToIndex[name]
	return index, ok
}

// Name returns the value behind a code, or false for a code the map never produced.
func (f CategoryMap) Name(index int) (string, bool) {
	name, ok := f.IndexToName[index]
	return name, ok
}
