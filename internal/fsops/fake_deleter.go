package fsops

// FakeDeleter implements Deleter for testing
// Records all delete calls without performing actual deletions.
// Paths present in Errors fail with the mapped error.
type FakeDeleter struct {
	Calls  []string
	Errors map[string]error
}

func (f *FakeDeleter) Remove(path string) error {
	f.Calls = append(f.Calls, "rm:"+path)
	if err, ok := f.Errors[path]; ok {
		return err
	}
	return nil
}
