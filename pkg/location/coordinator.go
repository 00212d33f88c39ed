package location

// Coordinator enforces that at most one form is picking on the map. Only the
// coordinator moves a form into or out of picking mode.
type Coordinator struct {
	active *Form
}

func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// Activate makes f the picking form, releasing whichever form was picking.
func (c *Coordinator) Activate(f *Form) {
	if c.active == f {
		return
	}
	if c.active != nil {
		c.active.disarm()
	}
	c.active = f
	f.arm()
}

// Release takes f out of picking mode if it is the picking form.
func (c *Coordinator) Release(f *Form) {
	if c.active != f {
		return
	}
	c.active = nil
	f.disarm()
}

// Active returns the picking form, or nil.
func (c *Coordinator) Active() *Form {
	return c.active
}
