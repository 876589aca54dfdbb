package codegen

const calculatorHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Calculator</title>
    <link rel="stylesheet" href="style.css">
</head>
<body>
    <div class="calculator">
        <input type="text" id="result" readonly>
        <div class="buttons">
            <button onclick="clearDisplay()">C</button>
            <button onclick="deleteLast()">DEL</button>
            <button onclick="appendToDisplay('/')">/</button>
            <button onclick="appendToDisplay('*')">*</button>
            <button onclick="appendToDisplay('7')">7</button>
            <button onclick="appendToDisplay('8')">8</button>
            <button onclick="appendToDisplay('9')">9</button>
            <button onclick="appendToDisplay('-')">-</button>
            <button onclick="appendToDisplay('4')">4</button>
            <button onclick="appendToDisplay('5')">5</button>
            <button onclick="appendToDisplay('6')">6</button>
            <button onclick="appendToDisplay('+')">+</button>
            <button onclick="appendToDisplay('1')">1</button>
            <button onclick="appendToDisplay('2')">2</button>
            <button onclick="appendToDisplay('3')">3</button>
            <button onclick="calculate()" class="equals">=</button>
            <button onclick="appendToDisplay('0')" class="zero">0</button>
            <button onclick="appendToDisplay('.')">.</button>
        </div>
    </div>
    <script src="script.js"></script>
</body>
</html>
`

const calculatorCSS = `* { margin: 0; padding: 0; box-sizing: border-box; }
body { font-family: Arial, sans-serif; display: flex; justify-content: center; align-items: center; min-height: 100vh; background: #667eea; }
.calculator { background: white; border-radius: 20px; padding: 20px; }
#result { width: 100%; height: 60px; font-size: 24px; text-align: right; margin-bottom: 20px; }
.buttons { display: grid; grid-template-columns: repeat(4, 1fr); gap: 10px; }
button { height: 60px; font-size: 18px; border: none; border-radius: 10px; cursor: pointer; }
.equals { background: #4CAF50; color: white; }
.zero { grid-column: span 2; }
`

const calculatorJS = `const display = document.getElementById('result');

function appendToDisplay(value) {
    display.value += value;
}

function clearDisplay() {
    display.value = '';
}

function deleteLast() {
    display.value = display.value.slice(0, -1);
}

function calculate() {
    try {
        display.value = Function('"use strict"; return (' + display.value + ')')();
    } catch (error) {
        display.value = 'Error';
    }
}
`

const todoHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Todo List</title>
    <style>
        body { font-family: Arial, sans-serif; background: #f0f2f5; padding: 20px; }
        .container { max-width: 600px; margin: 0 auto; background: white; border-radius: 10px; padding: 30px; }
        .todo-item.completed span { text-decoration: line-through; opacity: 0.6; }
    </style>
</head>
<body>
    <div class="container">
        <h1>Todo List</h1>
        <input type="text" id="todoInput" placeholder="Add a new task...">
        <button id="addBtn">Add</button>
        <div id="todoList"></div>
    </div>
    <script src="app.js"></script>
</body>
</html>
`

const todoJS = `let todos = [];
let nextId = 0;

function addTodo() {
    const input = document.getElementById('todoInput');
    const text = input.value.trim();
    if (text === '') return;
    todos.push({ id: nextId++, text: text, completed: false });
    input.value = '';
    renderTodos();
}

function toggleTodo(id) {
    todos = todos.map(function (todo) {
        return todo.id === id ? Object.assign({}, todo, { completed: !todo.completed }) : todo;
    });
    renderTodos();
}

function deleteTodo(id) {
    todos = todos.filter(function (todo) { return todo.id !== id; });
    renderTodos();
}

function renderTodos() {
    const list = document.getElementById('todoList');
    list.innerHTML = '';
    todos.forEach(function (todo) {
        const item = document.createElement('div');
        item.className = 'todo-item' + (todo.completed ? ' completed' : '');
        const box = document.createElement('input');
        box.type = 'checkbox';
        box.checked = todo.completed;
        box.onchange = function () { toggleTodo(todo.id); };
        const label = document.createElement('span');
        label.textContent = todo.text;
        const remove = document.createElement('button');
        remove.textContent = 'Delete';
        remove.onclick = function () { deleteTodo(todo.id); };
        item.append(box, label, remove);
        list.appendChild(item);
    });
}

document.getElementById('addBtn').addEventListener('click', addTodo);
document.getElementById('todoInput').addEventListener('keypress', function (e) {
    if (e.key === 'Enter') addTodo();
});
`

const weatherHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Weather App</title>
</head>
<body>
    <h1>Weather App</h1>
    <input type="text" id="cityInput" placeholder="Enter city name...">
    <button onclick="getWeather()">Search</button>
    <div id="temperature"></div>
    <div id="description"></div>
    <script src="weather.js"></script>
</body>
</html>
`

const weatherJS = `const demoData = {
    london: { temp: 18, desc: 'Cloudy' },
    paris: { temp: 22, desc: 'Sunny' },
    tokyo: { temp: 25, desc: 'Partly Cloudy' }
};

function getWeather() {
    const city = document.getElementById('cityInput').value.toLowerCase().trim();
    if (!city) {
        alert('Please enter a city name');
        return;
    }
    const data = demoData[city] || { temp: 20, desc: 'Clear' };
    document.getElementById('temperature').textContent = data.temp + '°C';
    document.getElementById('description').textContent = data.desc + ' in ' + city;
}
`

const timerHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Countdown Timer</title>
</head>
<body>
    <h1>Countdown Timer</h1>
    <input type="number" id="minutes" min="0" value="5"> minutes
    <button onclick="startTimer()">Start</button>
    <button onclick="stopTimer()">Stop</button>
    <div id="display">05:00</div>
    <script src="timer.js"></script>
</body>
</html>
`

const timerJS = `let remaining = 0;
let handle = null;

function render() {
    const m = String(Math.floor(remaining / 60)).padStart(2, '0');
    const s = String(remaining % 60).padStart(2, '0');
    document.getElementById('display').textContent = m + ':' + s;
}

function startTimer() {
    stopTimer();
    remaining = parseInt(document.getElementById('minutes').value, 10) * 60;
    render();
    handle = setInterval(function () {
        remaining--;
        render();
        if (remaining <= 0) {
            stopTimer();
            alert('Time is up!');
        }
    }, 1000);
}

function stopTimer() {
    if (handle !== null) {
        clearInterval(handle);
        handle = null;
    }
}
`

const helloAIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Hello AI World</title>
</head>
<body>
    <h1>Hello AI World!</h1>
    <button onclick="showMessage()">Say hello</button>
    <div id="message"></div>
    <script src="script.js"></script>
</body>
</html>
`

const helloAIJS = `const messages = ['Hello, AI world!', 'Your ideas, instantly realized!', 'Built from a voice command.'];

function showMessage() {
    const pick = messages[Math.floor(Math.random() * messages.length)];
    document.getElementById('message').textContent = pick;
}
`

const helloAIPython = `#!/usr/bin/env python3
"""Hello AI World - generated from a voice command."""


def main():
    print("Hello, AI world!")
    print("This file was created from a voice command.")


if __name__ == "__main__":
    main()
`

const basicHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <title>Generated App</title>
    <link rel="stylesheet" href="style.css">
</head>
<body>
    <h1>Welcome to Your Generated App</h1>
    <script src="script.js"></script>
</body>
</html>
`

const basicCSS = `body { font-family: Arial, sans-serif; margin: 40px; background: #f5f5f5; }
h1 { color: #333; }
`

const basicJS = `document.addEventListener('DOMContentLoaded', function () {
    console.log('App loaded successfully!');
});
`
