package depgraph_test

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestDepgraph(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, t.Name())
}
