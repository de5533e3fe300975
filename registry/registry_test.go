package registry_test

import (
	"github.com/walesch-yan/argussight/cmn/cos"
	"github.com/walesch-yan/argussight/registry"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Registry", func() {
	var r *registry.Registry

	BeforeEach(func() {
		r = registry.New()
	})

	It("rejects inserting a name that is already present", func() {
		Expect(r.Insert(&registry.Handle{Name: "W"})).To(Succeed())
		err := r.Insert(&registry.Handle{Name: "W"})
		Expect(err).To(HaveOccurred())
		Expect(cos.IsErrExists(err)).To(BeTrue())
	})

	It("round-trips insert/lookup/remove", func() {
		h := &registry.Handle{Name: "W", Type: "test"}
		Expect(r.Insert(h)).To(Succeed())

		got, err := r.Lookup("W")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(Equal(h))

		removed, err := r.Remove("W")
		Expect(err).NotTo(HaveOccurred())
		Expect(removed).To(Equal(h))

		_, err = r.Lookup("W")
		Expect(cos.IsErrNotFound(err)).To(BeTrue())
	})

	It("fails removing an absent name", func() {
		_, err := r.Remove("nope")
		Expect(cos.IsErrNotFound(err)).To(BeTrue())
	})

	It("suggests a near-miss name on lookup failure", func() {
		Expect(r.Insert(&registry.Handle{Name: "Saver"})).To(Succeed())
		_, err := r.Lookup("Savr")
		Expect(err).To(HaveOccurred())
		var e *cos.ErrNotFound
		Expect(err).To(BeAssignableToTypeOf(e))
		Expect(err.(*cos.ErrNotFound).Suggestion).To(Equal("Saver"))
	})

	It("does not suggest when nothing is close enough", func() {
		Expect(r.Insert(&registry.Handle{Name: "Saver"})).To(Succeed())
		_, err := r.Lookup("ZzzzzzzzzzQQ")
		Expect(err.(*cos.ErrNotFound).Suggestion).To(Equal(""))
	})

	It("lists live workers sorted by name", func() {
		Expect(r.Insert(&registry.Handle{Name: "Bravo"})).To(Succeed())
		Expect(r.Insert(&registry.Handle{Name: "Alpha"})).To(Succeed())
		names := make([]string, 0, 2)
		for _, h := range r.List() {
			names = append(names, h.Name)
		}
		Expect(names).To(Equal([]string{"Alpha", "Bravo"}))
	})
})
