package workspace_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/openbuildnet/obncore/port"
	"github.com/openbuildnet/obncore/workspace"
)

type nopSender struct{}

func (nopSender) Send(peer string, payload []byte) error { return nil }

var _ = Describe("Builder", func() {
	It("coalesces an exact duplicate connection", func() {
		b := workspace.NewBuilder("ws")
		Expect(b.AddNode("A")).To(Succeed())
		Expect(b.AddNode("B")).To(Succeed())
		Expect(b.AddPort(workspace.PortSpec{Node: "A", Name: "out1", Dir: workspace.DirOut, Container: port.ContainerScalar, Elem: port.ElemF64, Mask: 1})).To(Succeed())
		Expect(b.AddPort(workspace.PortSpec{Node: "B", Name: "in1", Dir: workspace.DirIn, Container: port.ContainerScalar, Elem: port.ElemF64, Mask: 1})).To(Succeed())

		c := workspace.ConnSpec{SrcNode: "A", SrcPort: "out1", TgtNode: "B", TgtPort: "in1"}
		Expect(b.Connect(c)).To(Succeed())
		Expect(b.Connect(c)).To(Succeed())

		ws, err := b.Build(nopSender{})
		Expect(err).NotTo(HaveOccurred())
		Expect(ws.Conns).To(HaveLen(1))
	})

	It("rejects a connection forming a cycle", func() {
		b := workspace.NewBuilder("ws")
		Expect(b.AddNode("A")).To(Succeed())
		Expect(b.AddNode("B")).To(Succeed())
		Expect(b.AddPort(workspace.PortSpec{Node: "A", Name: "out1", Dir: workspace.DirOut, Mask: 1})).To(Succeed())
		Expect(b.AddPort(workspace.PortSpec{Node: "A", Name: "in1", Dir: workspace.DirIn, Mask: 1})).To(Succeed())
		Expect(b.AddPort(workspace.PortSpec{Node: "B", Name: "in1", Dir: workspace.DirIn, Mask: 1})).To(Succeed())
		Expect(b.AddPort(workspace.PortSpec{Node: "B", Name: "out1", Dir: workspace.DirOut, Mask: 1})).To(Succeed())

		Expect(b.Connect(workspace.ConnSpec{SrcNode: "A", SrcPort: "out1", TgtNode: "B", TgtPort: "in1"})).To(Succeed())
		Expect(b.Connect(workspace.ConnSpec{SrcNode: "B", SrcPort: "out1", TgtNode: "A", TgtPort: "in1"})).To(Succeed())

		_, err := b.Build(nopSender{})
		Expect(err).To(HaveOccurred())
	})

	It("rejects a duplicate update id on the same node", func() {
		b := workspace.NewBuilder("ws")
		Expect(b.AddNode("A")).To(Succeed())
		Expect(b.AddUpdate(workspace.UpdateSpec{Node: "A", ID: 0, Period: 1})).To(Succeed())
		Expect(b.AddUpdate(workspace.UpdateSpec{Node: "A", ID: 0, Period: 2})).To(HaveOccurred())
	})
})
