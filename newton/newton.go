// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package newton solves nonlinear systems 𝑭(𝐮) = 0 with a
// Jacobian-free Newton–Krylov iteration.
//
// Each outer step linearizes 𝑭 at the current iterate through a
// matrix-free jacobian.Operator and solves the Newton correction
// 𝑱(𝐮)·𝐬 = -𝑭(𝐮) with GMRES, so the Jacobian is never materialized.
// Steps are taken in full: no line search or damping is applied, and
// overshooting shows up to the caller as Diverged or MaxIterExceeded.
package newton

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"gonum.org/v1/gonum/floats"

	"github.com/curioloop/matfree/jacobian"
	"github.com/curioloop/matfree/krylov"
)

// LogLevel controls the frequency and type of logger output
type LogLevel int

const (
	// LogNoop no output is generated (level < 0)
	LogNoop LogLevel = -1
	// LogLast print only one line at the last iteration
	LogLast LogLevel = 0
	// LogTrace print the residual norm of every outer iteration
	LogTrace LogLevel = 1
)

// Logger handles logging output for the solver.
// Note the writer must be thread-safe.
type Logger struct {
	Level LogLevel
	Msg   io.Writer // Writer to output log messages.
}

func (l *Logger) enable(level LogLevel) bool {
	return l.Level >= level
}

func (l *Logger) log(format string, a ...any) {
	if len(a) > 0 {
		_, _ = fmt.Fprintf(l.Msg, format, a...)
	} else {
		_, _ = fmt.Fprint(l.Msg, format)
	}
}

// Status is the state of the outer Newton iteration.
type Status int

const (
	// Running the iteration has not reached a terminal state.
	Running Status = iota
	// Converged the residual norm passed the tolerance test.
	Converged
	// Diverged the residual or a Jacobian product became non-finite.
	Diverged
	// MaxIterExceeded the iteration budget ran out before convergence.
	MaxIterExceeded
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Converged:
		return "converged"
	case Diverged:
		return "diverged"
	case MaxIterExceeded:
		return "max iterations exceeded"
	}
	return "unknown"
}

// Callback observes the iterate after solver entry and after every
// outer step. The slice is live solver state: it must not be mutated
// or retained.
type Callback func(u []float64)

// Termination specifies the stopping criteria for the Newton iteration.
type Termination struct {
	// The iteration will stop when the residual satisfied:
	//   ‖𝑭(𝐮)‖ ≤ 𝚝𝚘𝚕_𝚊𝚋𝚜 + 𝚝𝚘𝚕_𝚛𝚎𝚕 × ‖𝑭(𝐮₀)‖
	// TolRel defaults to 1e-6, TolAbs to 1e-12.
	TolRel, TolAbs float64
	// The iteration stop when the number of outer iterations exceeds
	// limit. Defaults to 50.
	MaxIterations int
}

// Problem specifies the root-finding problem 𝑭(𝐮) = 0.
type Problem struct {
	N        int               // The state dimension
	M        int               // The residual dimension, must equal N
	F        jacobian.Func     // Residual function
	Provider jacobian.Provider // Directional derivatives of F
	Stop     Termination       // Stop condition
	Krylov   krylov.Settings   // Options for the inner linear solves
	Callback Callback          // Optional iterate observer
}

// New creates a new Newton-Krylov solver for given problem.
func (p *Problem) New(logger *Logger) (solver *Solver, err error) {

	if logger == nil {
		logger = new(Logger)
		logger.Level = LogNoop
	}
	if logger.Msg == nil {
		logger.Msg = os.Stdout
	}

	stop := p.Stop
	if stop.TolRel == 0 {
		stop.TolRel = 1e-6
	}
	if stop.TolAbs == 0 {
		stop.TolAbs = 1e-12
	}
	if stop.MaxIterations == 0 {
		stop.MaxIterations = 50
	}

	switch {
	case p.N <= 0:
		err = errors.New("problem dimension must greater than 0")
	case p.M != p.N:
		err = errors.New("residual dimension must equal to n")
	case p.F == nil:
		err = errors.New("residual function is required")
	case p.Provider == nil:
		err = errors.New("derivative provider is required")
	case stop.MaxIterations < 0:
		err = errors.New("max iteration must greater than 0")
	case math.IsNaN(stop.TolRel) || stop.TolRel < 0:
		err = errors.New("relative tolerance must not less than 0")
	case math.IsNaN(stop.TolAbs) || stop.TolAbs < 0:
		err = errors.New("absolute tolerance must not less than 0")
	}
	if err != nil {
		return
	}

	solver = &Solver{
		n: p.N, m: p.M,
		f:        p.F,
		prov:     p.Provider,
		stop:     stop,
		krylov:   p.Krylov,
		callback: p.Callback,
		logger:   *logger,
	}
	return
}

// Solver implemented using the Jacobian-free Newton-Krylov method.
// A Solver is stateless across Solve calls, but its Provider scratch
// is not: to avoid race conditions, create separate solvers for each
// goroutine.
type Solver struct {
	n, m     int
	f        jacobian.Func
	prov     jacobian.Provider
	stop     Termination
	krylov   krylov.Settings
	callback Callback
	logger   Logger
}

// Result contains the final result of the Newton iteration.
type Result struct {
	OK      bool      // Whether the iteration was converged.
	X       []float64 // Final iterate.
	Norm    float64   // Final residual norm ‖𝑭(𝐱)‖.
	Summary           // Iteration summary.
}

// Summary contains a summary of the Newton iteration.
type Summary struct {
	Status    Status // Final status after iteration.
	NumIter   int    // Number of outer iterations performed.
	NumMulVec int    // Number of Jacobian-vector products performed.
}

// Solve runs the Newton iteration from the initial guess x0.
//
// It returns a converged solution, or the best iterate so far with
// OK false when the budget runs out (MaxIterExceeded), or the last
// finite iterate when the residual blows up (Diverged). A failed
// inner solve that merely hits its own iteration limit is not fatal:
// the inexact step is taken and the outer test decides.
func (s *Solver) Solve(x0 []float64) *Result {

	if len(x0) != s.n {
		panic("initial x dimension not match problem")
	}

	u := slices.Clone(x0)
	r := make([]float64, s.m)
	rhs := make([]float64, s.m)

	s.f(r, u)
	norm := floats.Norm(r, 2)
	tol := s.stop.TolAbs + s.stop.TolRel*norm
	if s.callback != nil {
		s.callback(u)
	}

	status := Running
	iter, mulVec := 0, 0
	for {
		switch {
		case math.IsNaN(norm) || math.IsInf(norm, 0):
			status = Diverged
		case norm <= tol:
			status = Converged
		case iter >= s.stop.MaxIterations:
			status = MaxIterExceeded
		}
		if s.logger.enable(LogTrace) {
			s.logger.log("newton: iter %3d  |F| = %.6e\n", iter, norm)
		}
		if status != Running {
			break
		}

		op, err := jacobian.NewOperator(s.f, s.m, u, s.prov)
		if err != nil {
			panic("operator construction failed: " + err.Error())
		}

		var opErr error
		sys := krylov.System{
			MulVec: func(dst, v []float64) {
				if err := op.Apply(dst, v); err != nil && opErr == nil {
					opErr = err
				}
			},
			MulTransVec: func(dst, v []float64) {
				if err := op.ApplyTrans(dst, v); err != nil && opErr == nil {
					opErr = err
				}
			},
		}

		// Newton correction: J(u)·s = -F(u).
		floats.ScaleTo(rhs, -1, r)
		res, kerr := krylov.Solve(sys, rhs, s.krylov)
		mulVec += res.Stats.MulVec
		if opErr != nil || errors.Is(kerr, krylov.ErrBreakdown) {
			status = Diverged
			if s.logger.enable(LogTrace) {
				s.logger.log("newton: inner solve failed: %v\n", errors.Join(kerr, opErr))
			}
			break
		}

		floats.Add(u, res.X)
		s.f(r, u)
		norm = floats.Norm(r, 2)
		iter++
		if s.callback != nil {
			s.callback(u)
		}
	}

	if s.logger.enable(LogLast) {
		s.logger.log("newton: %v after %d iterations, |F| = %.6e\n", status, iter, norm)
	}

	return &Result{
		OK: status == Converged,
		X:  u, Norm: norm,
		Summary: Summary{
			Status:    status,
			NumIter:   iter,
			NumMulVec: mulVec,
		},
	}
}
