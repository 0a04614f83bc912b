package eventstore

import (
	"slices"
)

// IsSubset reports whether payload structurally contains everything demanded by predicate.
//
//   - An absent predicate (nil or Null) matches anything.
//   - An absent payload never matches a present predicate.
//   - Scalars match if they are of the same kind and equal.
//   - Arrays match if every predicate element is satisfied by at least one payload element.
//     Payload elements are not consumed, so two predicate elements may be satisfied by the same one.
//   - Objects match if every predicate key exists in the payload and its value matches recursively.
//     Extra payload keys are ignored.
//   - An array never matches a non-array and an object never matches a non-object.
//
// The predicate always drives the iteration.
func IsSubset(payload, predicate Value) bool {
	if IsAbsent(predicate) {
		return true
	}

	if IsAbsent(payload) {
		return false
	}

	switch pred := predicate.(type) {
	case Array:
		arr, ok := payload.(Array)
		if !ok {
			return false
		}

		for _, predElem := range pred {
			matched := slices.ContainsFunc(arr, func(elem Value) bool {
				return IsSubset(elem, predElem)
			})

			if !matched {
				return false
			}
		}

		return true

	case Object:
		obj, ok := payload.(Object)
		if !ok {
			return false
		}

		for key, predVal := range pred {
			val, exists := obj[key]
			if !exists {
				return false
			}

			if !IsSubset(val, predVal) {
				return false
			}
		}

		return true

	case Bool:
		val, ok := payload.(Bool)
		return ok && val == pred

	case Number:
		val, ok := payload.(Number)
		return ok && val == pred

	case String:
		val, ok := payload.(String)
		return ok && val == pred

	default:
		return false
	}
}
