package review

// Confirmer asks the reviewer a yes/no question.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// ConfirmerFunc adapts a function to the Confirmer interface.
type ConfirmerFunc func(prompt string) (bool, error)

// Confirm calls f.
func (f ConfirmerFunc) Confirm(prompt string) (bool, error) {
	return f(prompt)
}

// Always returns a Confirmer that answers every prompt with answer.
func Always(answer bool) Confirmer {
	return ConfirmerFunc(func(string) (bool, error) { return answer, nil })
}
