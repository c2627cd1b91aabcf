// Package testutil holds test doubles shared by the queue packages.
package testutil
