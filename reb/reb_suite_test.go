package reb

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestReb(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Reb Suite")
}
