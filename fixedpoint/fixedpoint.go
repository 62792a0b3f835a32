// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fixedpoint implements the bone-precision 256-bit fixed-point math
// shared by the Balancer-style weighted-pool simulator and the Bancor
// conversion-path simulator. All inputs and outputs are unsigned 256-bit
// integers; every function is checked for overflow rather than wrapping.
package fixedpoint

import (
	"errors"

	"github.com/holiman/uint256"
)

// Bone is the fixed-point unit used throughout Balancer-family math.
var Bone = uint256.NewInt(1e18)

// ErrOverflow is returned when an intermediate product would not fit in 256 bits.
var ErrOverflow = errors.New("fixedpoint: overflow")

// ErrDivByZero is returned by Bdiv when the divisor is zero.
var ErrDivByZero = errors.New("fixedpoint: division by zero")

func half(x *uint256.Int) *uint256.Int {
	return new(uint256.Int).Rsh(x, 1)
}

// Bmul computes (a*b + bone/2) / bone, matching Balancer's BNum.bmul.
func Bmul(a, b *uint256.Int) (*uint256.Int, error) {
	c0, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return nil, ErrOverflow
	}
	c1, overflow := new(uint256.Int).AddOverflow(c0, half(Bone))
	if overflow {
		return nil, ErrOverflow
	}
	return new(uint256.Int).Div(c1, Bone), nil
}

// Bdiv computes (a*bone + b/2) / b, matching Balancer's BNum.bdiv.
func Bdiv(a, b *uint256.Int) (*uint256.Int, error) {
	if b.IsZero() {
		return nil, ErrDivByZero
	}
	c0, overflow := new(uint256.Int).MulOverflow(a, Bone)
	if overflow {
		return nil, ErrOverflow
	}
	c1, overflow := new(uint256.Int).AddOverflow(c0, half(b))
	if overflow {
		return nil, ErrOverflow
	}
	return new(uint256.Int).Div(c1, b), nil
}

// BpowInt raises a bone-scaled value to an integer power by square-and-multiply.
func BpowInt(a *uint256.Int, n uint64) (*uint256.Int, error) {
	var z *uint256.Int
	if n%2 != 0 {
		z = new(uint256.Int).Set(a)
	} else {
		z = new(uint256.Int).Set(Bone)
	}
	var err error
	for n /= 2; n != 0; n /= 2 {
		a, err = Bmul(a, a)
		if err != nil {
			return nil, err
		}
		if n%2 != 0 {
			z, err = Bmul(z, a)
			if err != nil {
				return nil, err
			}
		}
	}
	return z, nil
}

// BpowApprox evaluates the Taylor series for a fractional bone-scaled
// exponent, halting when the running term drops below precision.
func BpowApprox(base, exp, precision *uint256.Int) (*uint256.Int, error) {
	x, xneg := bsubSign(base, Bone)
	term := new(uint256.Int).Set(Bone)
	sum := new(uint256.Int).Set(term)
	negative := false

	var err error
	for i := uint64(1); term.Cmp(precision) >= 0; i++ {
		bigK := new(uint256.Int).Mul(uint256.NewInt(i), Bone)
		c, cneg := bsubSign(exp, bsub(bigK, Bone))
		cx, err := Bmul(c, x)
		if err != nil {
			return nil, err
		}
		term, err = Bmul(term, cx)
		if err != nil {
			return nil, err
		}
		term, err = Bdiv(term, bigK)
		if err != nil {
			return nil, err
		}
		if term.IsZero() {
			break
		}
		if xneg {
			negative = !negative
		}
		if cneg {
			negative = !negative
		}
		if negative {
			sum = bsub(sum, term)
		} else {
			sum = new(uint256.Int).Add(sum, term)
		}
	}
	return sum, nil
}

// Bpow computes base^(exp/bone) for 1 <= base <= 2*bone-1, matching
// Balancer's BNum.bpow: integer part by square-and-multiply, fractional
// part by Taylor approximation to precision bone/1e10.
func Bpow(base, exp *uint256.Int) (*uint256.Int, error) {
	one := uint256.NewInt(1)
	max := new(uint256.Int).Sub(new(uint256.Int).Mul(uint256.NewInt(2), Bone), one)
	if base.Cmp(one) < 0 || base.Cmp(max) > 0 {
		return nil, errors.New("fixedpoint: bpow base out of bounds")
	}
	whole := new(uint256.Int).Div(exp, Bone)
	remain := new(uint256.Int).Sub(exp, new(uint256.Int).Mul(whole, Bone))

	wholePow, err := BpowInt(base, whole.Uint64())
	if err != nil {
		return nil, err
	}
	if remain.IsZero() {
		return wholePow, nil
	}
	precision := new(uint256.Int).Div(Bone, uint256.NewInt(1e10))
	partial, err := BpowApprox(base, remain, precision)
	if err != nil {
		return nil, err
	}
	return Bmul(wholePow, partial)
}

func bsub(a, b *uint256.Int) *uint256.Int {
	r, _ := bsubSign(a, b)
	return r
}

// bsubSign returns |a-b| and whether a<b, matching Balancer's bsubSign.
func bsubSign(a, b *uint256.Int) (*uint256.Int, bool) {
	if a.Cmp(b) >= 0 {
		return new(uint256.Int).Sub(a, b), false
	}
	return new(uint256.Int).Sub(b, a), true
}
