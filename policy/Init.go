package policy

import (
	"fmt"

	"github.com/samuelfneumann/gogps/utils/matutils"
	"gonum.org/v1/gonum/mat"
)

// InitType is a type of initial controller
type InitType string

const (
	// ZeroInit has zero gains and bias
	ZeroInit InitType = "zero"

	// PDInit is a proportional-derivative controller towards the
	// initial state
	PDInit InitType = "pd"

	// LQRInit is an LQR controller which holds the initial state under
	// guessed double integrator dynamics
	LQRInit InitType = "lqr"
)

// InitConfig configures the initial controller of each condition
type InitConfig struct {
	Type InitType `yaml:"type"`

	// InitVar is the initial action variance
	InitVar float64 `yaml:"init_var"`

	// PosGains and VelGains are the gains of the pd controller
	PosGains float64 `yaml:"pos_gains,omitempty"`
	VelGains float64 `yaml:"vel_gains,omitempty"`

	// The following configure the lqr controller. InitGains and InitAcc
	// have the dimension of the action and default to ones and zeros.
	InitGains    []float64 `yaml:"init_gains,omitempty"`
	InitAcc      []float64 `yaml:"init_acc,omitempty"`
	Stiffness    float64   `yaml:"stiffness,omitempty"`
	StiffnessVel float64   `yaml:"stiffness_vel,omitempty"`
	FinalWeight  float64   `yaml:"final_weight,omitempty"`
	Dt           float64   `yaml:"dt,omitempty"`
}

// DefaultInitConfig returns the default initial controller
// configuration
func DefaultInitConfig() InitConfig {
	return InitConfig{
		Type:         ZeroInit,
		InitVar:      1.0,
		PosGains:     1.0,
		VelGains:     0.1,
		Stiffness:    1.0,
		StiffnessVel: 0.5,
		FinalWeight:  1.0,
		Dt:           0.05,
	}
}

// Validate returns an error describing whether or not the
// configuration is valid for states of dimension dX and actions of
// dimension dU
func (c InitConfig) Validate(dX, dU int) error {
	if c.InitVar <= 0 {
		return fmt.Errorf("validate: init_var must be positive")
	}

	switch c.Type {
	case ZeroInit:
		return nil

	case PDInit:
		if dU > dX {
			return fmt.Errorf("validate: pd initialization requires the "+
				"action dimension %d to be at most the state dimension %d",
				dU, dX)
		}
		return nil

	case LQRInit:
		if 2*dU > dX {
			return fmt.Errorf("validate: lqr initialization requires the "+
				"state to hold a position and velocity per action "+
				"dimension, have dX=%d, dU=%d", dX, dU)
		}
		if c.InitGains != nil && len(c.InitGains) != dU {
			return fmt.Errorf("validate: init_gains must have dimension %d",
				dU)
		}
		if c.InitAcc != nil && len(c.InitAcc) != dU {
			return fmt.Errorf("validate: init_acc must have dimension %d",
				dU)
		}
		if c.Dt <= 0 {
			return fmt.Errorf("validate: dt must be positive")
		}
		if c.Stiffness <= 0 || c.FinalWeight <= 0 {
			return fmt.Errorf("validate: stiffness and final_weight must " +
				"be positive")
		}
		return nil
	}
	return fmt.Errorf("validate: unknown initialization %q", c.Type)
}

// NewInitial returns the initial controller of horizon T for a
// condition with initial state x0
func NewInitial(c InitConfig, x0 mat.Vector, T, dU int,
	minEig float64) (*LinearGaussian, error) {
	dX := x0.Len()
	if err := c.Validate(dX, dU); err != nil {
		return nil, fmt.Errorf("newInitial: %w", err)
	}

	switch c.Type {
	case PDInit:
		return initPD(c, x0, T, dU, minEig)
	case LQRInit:
		return initLQR(c, x0, T, dU, minEig)
	default:
		return initZero(c, dX, T, dU, minEig)
	}
}

func constantCovar(T, dU int, variance float64) []*mat.SymDense {
	covar := make([]*mat.SymDense, T)
	for t := range covar {
		covar[t] = matutils.EyeSym(dU, variance)
	}
	return covar
}

func initZero(c InitConfig, dX, T, dU int, minEig float64) (*LinearGaussian,
	error) {
	K := make([]*mat.Dense, T)
	bias := make([]*mat.VecDense, T)
	for t := 0; t < T; t++ {
		K[t] = mat.NewDense(dU, dX, nil)
		bias[t] = mat.NewVecDense(dU, nil)
	}
	return NewLinearGaussian(K, bias, constantCovar(T, dU, c.InitVar), minEig)
}

// initPD returns a controller u = -Kp (pos - pos0) - Kv (vel - vel0),
// where the first dU dimensions of the state are positions and, when
// the state is large enough, the next dU are velocities
func initPD(c InitConfig, x0 mat.Vector, T, dU int,
	minEig float64) (*LinearGaussian, error) {
	dX := x0.Len()
	gain := mat.NewDense(dU, dX, nil)
	for i := 0; i < dU; i++ {
		gain.Set(i, i, -c.PosGains)
		if 2*dU <= dX {
			gain.Set(i, dU+i, -c.VelGains)
		}
	}
	var offset mat.VecDense
	offset.MulVec(gain, x0)
	offset.ScaleVec(-1, &offset)

	K := make([]*mat.Dense, T)
	bias := make([]*mat.VecDense, T)
	for t := 0; t < T; t++ {
		K[t] = gain
		bias[t] = &offset
	}
	return NewLinearGaussian(K, bias, constantCovar(T, dU, c.InitVar), minEig)
}

// guessDynamics returns linear dynamics x' = Fd [x; u] + fc of a double
// integrator whose first dU state dimensions are positions and next dU
// are velocities
func guessDynamics(gains, acc []float64, dX, dU int, dt float64) (*mat.Dense,
	*mat.VecDense) {
	Fd := mat.NewDense(dX, dX+dU, nil)
	fc := mat.NewVecDense(dX, nil)
	for i := 0; i < dU; i++ {
		// Positions
		Fd.Set(i, i, 1)
		Fd.Set(i, dU+i, dt)
		Fd.Set(i, dX+i, dt*dt*gains[i])
		fc.SetVec(i, acc[i]*dt*dt)

		// Velocities
		Fd.Set(dU+i, dU+i, 1)
		Fd.Set(dU+i, dX+i, dt*gains[i])
		fc.SetVec(dU+i, acc[i]*dt)
	}
	return Fd, fc
}

// initLQR returns the LQR controller which holds the initial state x0
// under guessed double integrator dynamics, with a quadratic cost on
// position, velocity, and action scaled by the inverse of the initial
// variance
func initLQR(c InitConfig, x0 mat.Vector, T, dU int,
	minEig float64) (*LinearGaussian, error) {
	dX := x0.Len()
	dXU := dX + dU

	gains := c.InitGains
	if gains == nil {
		gains = make([]float64, dU)
		for i := range gains {
			gains[i] = 1
		}
	}
	acc := c.InitAcc
	if acc == nil {
		acc = make([]float64, dU)
	}
	Fd, fc := guessDynamics(gains, acc, dX, dU, c.Dt)

	// Quadratic cost 0.5 (y - y0)ᵀ Ltt (y - y0), y0 = [x0; 0]
	ltt := mat.NewSymDense(dXU, nil)
	for i := 0; i < dU; i++ {
		ltt.SetSym(i, i, c.Stiffness/c.InitVar)
		ltt.SetSym(dU+i, dU+i, c.Stiffness*c.StiffnessVel/c.InitVar)
		ltt.SetSym(dX+i, dX+i, 1/c.InitVar)
	}
	y0 := matutils.Concat(x0, mat.NewVecDense(dU, nil))
	var lt mat.VecDense
	lt.MulVec(ltt, y0)
	lt.ScaleVec(-1, &lt)

	K := make([]*mat.Dense, T)
	bias := make([]*mat.VecDense, T)
	covar := make([]*mat.SymDense, T)

	Vxx := mat.NewSymDense(dX, nil)
	vx := mat.NewVecDense(dX, nil)
	for t := T - 1; t >= 0; t-- {
		weight := 1.0
		if t == T-1 {
			weight = c.FinalWeight
		}

		// Qtt = w Ltt + Fdᵀ Vxx Fd
		var tmp, qtt mat.Dense
		tmp.Mul(Vxx, Fd)
		qtt.Mul(Fd.T(), &tmp)
		var lttW mat.Dense
		lttW.Scale(weight, ltt)
		qtt.Add(&qtt, &lttW)
		Qtt := matutils.Sym(&qtt)

		// qt = w lt + Fdᵀ (vx + Vxx fc)
		var next, qt mat.VecDense
		next.MulVec(Vxx, fc)
		next.AddVec(&next, vx)
		qt.MulVec(Fd.T(), &next)
		qt.AddScaledVec(&qt, weight, &lt)

		Quu := matutils.SymBlock(Qtt, dX, dXU)
		Qux := matutils.Block(Qtt, dX, dXU, 0, dX)
		Qxx := matutils.SymBlock(Qtt, 0, dX)
		qu := matutils.SubVec(&qt, dX, dXU)
		qx := matutils.SubVec(&qt, 0, dX)

		var chol mat.Cholesky
		if ok := chol.Factorize(Quu); !ok {
			return nil, fmt.Errorf("initLQR: action Hessian at timestep %d "+
				"is not positive definite", t)
		}
		inv, err := matutils.InverseSym(&chol)
		if err != nil {
			return nil, fmt.Errorf("initLQR: %w", err)
		}

		var gain mat.Dense
		if err := chol.SolveTo(&gain, Qux); err != nil {
			return nil, fmt.Errorf("initLQR: %w", err)
		}
		gain.Scale(-1, &gain)
		var offset mat.VecDense
		if err := chol.SolveVecTo(&offset, qu); err != nil {
			return nil, fmt.Errorf("initLQR: %w", err)
		}
		offset.ScaleVec(-1, &offset)

		K[t] = &gain
		bias[t] = &offset
		covar[t] = inv

		// Vxx = Qxx + Quxᵀ K, vx = qx + Quxᵀ k
		var vxx mat.Dense
		vxx.Mul(Qux.T(), &gain)
		vxx.Add(&vxx, Qxx)
		Vxx = matutils.Sym(&vxx)

		vx = mat.NewVecDense(dX, nil)
		vx.MulVec(Qux.T(), &offset)
		vx.AddVec(vx, qx)
	}

	return NewLinearGaussian(K, bias, covar, minEig)
}
