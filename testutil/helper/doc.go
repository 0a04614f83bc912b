// Package helper provides fixtures, arrangement helpers, and observability spies for the eventstore tests.
package helper
