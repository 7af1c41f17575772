package vm

// Object is the payload of an Object value: a property table, an optional
// prototype and, for function objects, the function it invokes.
type Object struct {
	properties Table
	proto      *Value
	call       *Function
}

// NewObject creates an object whose properties live in a fresh table owned by
// ctx. proto may be nil; otherwise it must be an Object value and is retained.
func NewObject(ctx *Context, proto *Value) *Value {
	if proto != nil && proto.kind != KindObject && proto.kind != KindNull {
		fatalf("object.new", "prototype must be an object or null, got %s", proto.kind)
	}
	if proto != nil && proto.kind == KindNull {
		proto = nil
	}
	proto.Retain()
	return &Value{
		kind: KindObject,
		object: &Object{
			properties: NewTable(ctx),
			proto:      proto,
		},
	}
}

// NewFunctionValue wraps fn in a callable object. The object retains fn.
func NewFunctionValue(ctx *Context, fn *Function) *Value {
	v := NewObject(ctx, nil)
	fn.Retain()
	v.object.call = fn
	return v
}

// Properties returns the object's property table.
func (o *Object) Properties() Table { return o.properties }

// Proto returns the prototype, or nil.
func (o *Object) Proto() *Value { return o.proto }

// Function returns the function a callable object invokes, or nil.
func (o *Object) Function() *Function { return o.call }

// Callable reports whether the object can be the target of a call.
func (o *Object) Callable() bool { return o.call != nil }

// Get looks key up on the object and then along its prototype chain, as
// seen from ctx. It returns Undefined when no binding exists. The result is
// borrowed.
func (o *Object) Get(ctx *Context, key *Value) *Value {
	for cur := o; cur != nil; {
		if v, ok := ctx.TableGet(cur.properties, key); ok {
			if val, ok := v.(*Value); ok {
				return val
			}
			return Undefined
		}
		if cur.proto == nil {
			break
		}
		cur = cur.proto.object
	}
	return Undefined
}

// Set binds an own property in ctx.
func (o *Object) Set(ctx *Context, key, value *Value) {
	ctx.TableSet(o.properties, key, value)
}

// Delete removes an own property in ctx. Prototype bindings are untouched.
func (o *Object) Delete(ctx *Context, key *Value) {
	ctx.TableDel(o.properties, key)
}

func (o *Object) destroy() {
	o.properties.DestroyAll()
	o.proto.Release()
	o.proto = nil
	if o.call != nil {
		o.call.Release()
		o.call = nil
	}
}
